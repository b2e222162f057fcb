package market

import "context"

// OperationLogger records domain-level events emitted by service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing operation.
type OperationLog struct {
	Operation string
	UserID    UserID
	ListingID *ListingID
	BookingID *BookingID
	Kind      ActionKind
	Amount    AmountCents
	Status    string
	Error     error
}

type teeOperationLogger []OperationLogger

func (tee teeOperationLogger) LogOperation(ctx context.Context, entry OperationLog) {
	for _, logger := range tee {
		logger.LogOperation(ctx, entry)
	}
}

// TeeOperationLogger fans every operation out to each non-nil logger.
func TeeOperationLogger(loggers ...OperationLogger) OperationLogger {
	tee := make(teeOperationLogger, 0, len(loggers))
	for _, logger := range loggers {
		if logger != nil {
			tee = append(tee, logger)
		}
	}
	if len(tee) == 0 {
		return nil
	}
	return tee
}

func logOperation(ctx context.Context, logger OperationLogger, entry OperationLog) {
	if logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	logger.LogOperation(ctx, entry)
}
