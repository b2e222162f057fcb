// Package oplog adapts market operation callbacks onto zap.
package oplog

import (
	"context"

	"go.uber.org/zap"

	"github.com/roomly/core/pkg/market"
)

// ZapLogger implements market.OperationLogger on a zap logger.
type ZapLogger struct {
	logger *zap.Logger
}

// NewZapLogger wires a ZapLogger.
func NewZapLogger(logger *zap.Logger) *ZapLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapLogger{logger: logger}
}

// LogOperation emits one structured record per state-changing operation.
func (zapLogger *ZapLogger) LogOperation(_ context.Context, entry market.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
	}
	if entry.UserID.String() != "" {
		fields = append(fields, zap.String("user_id", entry.UserID.String()))
	}
	if entry.ListingID != nil {
		fields = append(fields, zap.String("listing_id", entry.ListingID.String()))
	}
	if entry.BookingID != nil {
		fields = append(fields, zap.String("booking_id", entry.BookingID.String()))
	}
	if entry.Kind != "" {
		fields = append(fields, zap.String("kind", entry.Kind.String()))
	}
	if entry.Amount != 0 {
		fields = append(fields, zap.Int64("amount_cents", entry.Amount.Int64()))
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
		zapLogger.logger.Warn("market operation failed", fields...)
		return
	}
	zapLogger.logger.Info("market operation", fields...)
}
