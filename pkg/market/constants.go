package market

const (
	operationBalance        = "balance"
	operationCharge         = "charge"
	operationTopup          = "topup"
	operationWithdraw       = "withdraw"
	operationCreateBooking  = "create_booking"
	operationConfirmBooking = "confirm_booking"
	operationCancelBooking  = "cancel_booking"
	operationReleaseDeposit = "release_deposit"
	operationExpireSweep    = "expire_sweep"
	operationCreateListing  = "create_listing"
	operationSetStatus      = "set_status"
	operationForceHide      = "force_hide"
	operationExtendListing  = "extend_listing"
	operationRepostListing  = "repost_listing"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	idempotencyPrefixHold    = "hold:"
	idempotencyPrefixRefund  = "refund:"
	idempotencyPrefixDeposit = "deposit:"
	idempotencyPrefixTopup   = "topup:"

	defaultSweepBatchSize = 100
)
