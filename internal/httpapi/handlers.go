package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/roomly/core/pkg/market"
)

func timeNowUnix() int64 {
	return time.Now().UTC().Unix()
}

type entryResponse struct {
	EntryID       string `json:"entry_id"`
	UserID        string `json:"user_id"`
	Kind          string `json:"kind"`
	AmountIn      int64  `json:"amount_in"`
	AmountOut     int64  `json:"amount_out"`
	BalanceBefore int64  `json:"balance_before"`
	BalanceAfter  int64  `json:"balance_after"`
	RefKind       string `json:"ref_kind,omitempty"`
	RefID         string `json:"ref_id,omitempty"`
	CreatedAt     int64  `json:"created_at"`
}

type bookingResponse struct {
	BookingID    string `json:"booking_id"`
	ListingID    string `json:"listing_id"`
	UserID       string `json:"user_id"`
	DepositCents int64  `json:"deposit_cents"`
	Status       string `json:"status"`
	CreatedAt    int64  `json:"created_at"`
	ExpiresAt    int64  `json:"expires_at"`
	ConfirmedAt  int64  `json:"confirmed_at,omitempty"`
}

type listingResponse struct {
	ListingID string `json:"listing_id"`
	OwnerID   string `json:"owner_id"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"created_at"`
}

func toEntryResponse(entry market.Entry) entryResponse {
	response := entryResponse{
		EntryID:       entry.EntryID,
		UserID:        entry.UserID.String(),
		Kind:          entry.Kind.String(),
		AmountIn:      entry.AmountIn.Int64(),
		AmountOut:     entry.AmountOut.Int64(),
		BalanceBefore: entry.BalanceBefore.Int64(),
		BalanceAfter:  entry.BalanceAfter.Int64(),
		CreatedAt:     entry.CreatedUnixUTC,
	}
	if entry.Reference != nil {
		response.RefKind = string(entry.Reference.Kind)
		response.RefID = entry.Reference.ID
	}
	return response
}

func toBookingResponse(booking market.Booking) bookingResponse {
	return bookingResponse{
		BookingID:    booking.BookingID.String(),
		ListingID:    booking.ListingID.String(),
		UserID:       booking.UserID.String(),
		DepositCents: booking.DepositCents.Int64(),
		Status:       booking.Status.String(),
		CreatedAt:    booking.CreatedUnixUTC,
		ExpiresAt:    booking.ExpiresUnixUTC,
		ConfirmedAt:  booking.ConfirmedUnixUTC,
	}
}

func toListingResponse(listing market.Listing) listingResponse {
	return listingResponse{
		ListingID: listing.ListingID.String(),
		OwnerID:   listing.OwnerID.String(),
		Status:    listing.Status.String(),
		CreatedAt: listing.CreatedUnixUTC,
	}
}

func (handler *httpHandler) handleBalance(ctx *gin.Context) {
	userID, err := market.NewUserID(ctx.Param("id"))
	if err != nil {
		handler.fail(ctx, err)
		return
	}
	if handler.cache != nil {
		if balance, hit := handler.cache.Get(ctx.Request.Context(), userID); hit {
			ctx.JSON(http.StatusOK, gin.H{"user_id": userID.String(), "balance_cents": balance.Int64()})
			return
		}
	}
	balance, err := handler.services.Wallet.Balance(ctx.Request.Context(), userID)
	if err != nil {
		handler.fail(ctx, err)
		return
	}
	if handler.cache != nil {
		handler.cache.Set(ctx.Request.Context(), userID, balance)
	}
	ctx.JSON(http.StatusOK, gin.H{"user_id": userID.String(), "balance_cents": balance.Int64()})
}

func (handler *httpHandler) handleEntries(ctx *gin.Context) {
	userID, err := market.NewUserID(ctx.Param("id"))
	if err != nil {
		handler.fail(ctx, err)
		return
	}
	before, _ := strconv.ParseInt(ctx.Query("before"), 10, 64)
	limit, _ := strconv.Atoi(ctx.Query("limit"))
	if limit <= 0 {
		limit = defaultEntriesLimit
	}
	if limit > maxEntriesLimit {
		limit = maxEntriesLimit
	}
	entries, err := handler.services.Wallet.Entries(ctx.Request.Context(), userID, before, limit)
	if err != nil {
		handler.fail(ctx, err)
		return
	}
	responses := make([]entryResponse, 0, len(entries))
	for _, entry := range entries {
		responses = append(responses, toEntryResponse(entry))
	}
	ctx.JSON(http.StatusOK, gin.H{"entries": responses})
}

type chargeRequest struct {
	UserID      string `json:"user_id"`
	Kind        string `json:"kind"`
	AmountCents int64  `json:"amount_cents"`
	ListingID   string `json:"listing_id"`
}

func (handler *httpHandler) handleCharge(ctx *gin.Context) {
	var request chargeRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	userID, err := market.NewUserID(request.UserID)
	if err != nil {
		handler.fail(ctx, err)
		return
	}
	kind, err := market.ParseActionKind(request.Kind)
	if err != nil {
		handler.fail(ctx, err)
		return
	}
	amount, err := market.NewPositiveAmountCents(request.AmountCents)
	if err != nil {
		handler.fail(ctx, err)
		return
	}
	listingID, err := market.NewListingID(request.ListingID)
	if err != nil {
		handler.fail(ctx, err)
		return
	}
	entry, err := handler.services.Wallet.ChargeForListingAction(ctx.Request.Context(), userID, kind, amount, listingID)
	if err != nil {
		handler.fail(ctx, err)
		return
	}
	handler.invalidateBalance(ctx, userID)
	ctx.JSON(http.StatusOK, toEntryResponse(entry))
}

type topupRequest struct {
	UserID        string `json:"user_id"`
	AmountCents   int64  `json:"amount_cents"`
	ProviderTxnID string `json:"provider_txn_id"`
}

func (handler *httpHandler) handleTopup(ctx *gin.Context) {
	var request topupRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	userID, err := market.NewUserID(request.UserID)
	if err != nil {
		handler.fail(ctx, err)
		return
	}
	amount, err := market.NewPositiveAmountCents(request.AmountCents)
	if err != nil {
		handler.fail(ctx, err)
		return
	}
	providerTxnID, err := market.NewIdempotencyKey(request.ProviderTxnID)
	if err != nil {
		handler.fail(ctx, err)
		return
	}
	entry, err := handler.services.Wallet.CreditTopup(ctx.Request.Context(), userID, amount, providerTxnID)
	if err != nil {
		handler.fail(ctx, err)
		return
	}
	handler.invalidateBalance(ctx, userID)
	ctx.JSON(http.StatusOK, toEntryResponse(entry))
}

type withdrawRequest struct {
	UserID      string `json:"user_id"`
	AmountCents int64  `json:"amount_cents"`
}

func (handler *httpHandler) handleWithdraw(ctx *gin.Context) {
	var request withdrawRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	userID, err := market.NewUserID(request.UserID)
	if err != nil {
		handler.fail(ctx, err)
		return
	}
	amount, err := market.NewPositiveAmountCents(request.AmountCents)
	if err != nil {
		handler.fail(ctx, err)
		return
	}
	entry, err := handler.services.Wallet.Withdraw(ctx.Request.Context(), userID, amount)
	if err != nil {
		handler.fail(ctx, err)
		return
	}
	handler.invalidateBalance(ctx, userID)
	ctx.JSON(http.StatusOK, toEntryResponse(entry))
}

type createListingRequest struct {
	OwnerID  string `json:"owner_id"`
	FeeCents int64  `json:"fee_cents"`
}

func (handler *httpHandler) handleCreateListing(ctx *gin.Context) {
	var request createListingRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	ownerID, err := market.NewUserID(request.OwnerID)
	if err != nil {
		handler.fail(ctx, err)
		return
	}
	fee, err := market.NewPositiveAmountCents(request.FeeCents)
	if err != nil {
		handler.fail(ctx, err)
		return
	}
	listing, err := handler.services.Listings.Create(ctx.Request.Context(), ownerID, fee)
	if err != nil {
		handler.fail(ctx, err)
		return
	}
	handler.invalidateBalance(ctx, ownerID)
	ctx.JSON(http.StatusCreated, toListingResponse(listing))
}

func (handler *httpHandler) handleApproveListing(ctx *gin.Context) {
	listingID, err := market.NewListingID(ctx.Param("id"))
	if err != nil {
		handler.fail(ctx, err)
		return
	}
	if err := handler.services.Listings.Approve(ctx.Request.Context(), listingID); err != nil {
		handler.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": market.ListingApproved.String()})
}

func (handler *httpHandler) handleForceHide(ctx *gin.Context) {
	listingID, err := market.NewListingID(ctx.Param("id"))
	if err != nil {
		handler.fail(ctx, err)
		return
	}
	if err := handler.services.Listings.ForceHide(ctx.Request.Context(), listingID); err != nil {
		handler.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": market.ListingHidden.String()})
}

type ownerActionRequest struct {
	OwnerID  string `json:"owner_id"`
	FeeCents int64  `json:"fee_cents"`
}

func (handler *httpHandler) handleExtendListing(ctx *gin.Context) {
	handler.handleOwnerAction(ctx, handler.services.Listings.Extend)
}

func (handler *httpHandler) handleRepostListing(ctx *gin.Context) {
	handler.handleOwnerAction(ctx, handler.services.Listings.Repost)
}

func (handler *httpHandler) handleOwnerAction(ctx *gin.Context, action func(requestContext context.Context, ownerID market.UserID, listingID market.ListingID, fee market.PositiveAmountCents) error) {
	listingID, err := market.NewListingID(ctx.Param("id"))
	if err != nil {
		handler.fail(ctx, err)
		return
	}
	var request ownerActionRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	ownerID, err := market.NewUserID(request.OwnerID)
	if err != nil {
		handler.fail(ctx, err)
		return
	}
	fee, err := market.NewPositiveAmountCents(request.FeeCents)
	if err != nil {
		handler.fail(ctx, err)
		return
	}
	if err := action(ctx.Request.Context(), ownerID, listingID, fee); err != nil {
		handler.fail(ctx, err)
		return
	}
	handler.invalidateBalance(ctx, ownerID)
	ctx.JSON(http.StatusOK, gin.H{"ok": true})
}

type createBookingRequest struct {
	ListingID    string `json:"listing_id"`
	UserID       string `json:"user_id"`
	DepositCents int64  `json:"deposit_cents"`
	HoldSeconds  int64  `json:"hold_seconds"`
}

func (handler *httpHandler) handleCreateBooking(ctx *gin.Context) {
	var request createBookingRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	listingID, err := market.NewListingID(request.ListingID)
	if err != nil {
		handler.fail(ctx, err)
		return
	}
	userID, err := market.NewUserID(request.UserID)
	if err != nil {
		handler.fail(ctx, err)
		return
	}
	deposit, err := market.NewPositiveAmountCents(request.DepositCents)
	if err != nil {
		handler.fail(ctx, err)
		return
	}
	booking, err := handler.services.Bookings.Create(ctx.Request.Context(), listingID, userID, deposit, request.HoldSeconds)
	if err != nil {
		handler.fail(ctx, err)
		return
	}
	handler.invalidateBalance(ctx, userID)
	ctx.JSON(http.StatusCreated, toBookingResponse(booking))
}

func (handler *httpHandler) handleConfirmBooking(ctx *gin.Context) {
	bookingID, err := market.NewBookingID(ctx.Param("id"))
	if err != nil {
		handler.fail(ctx, err)
		return
	}
	booking, err := handler.services.Bookings.Confirm(ctx.Request.Context(), bookingID)
	if err != nil {
		handler.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, toBookingResponse(booking))
}

type cancelBookingRequest struct {
	Initiator string `json:"initiator"`
}

func (handler *httpHandler) handleCancelBooking(ctx *gin.Context) {
	bookingID, err := market.NewBookingID(ctx.Param("id"))
	if err != nil {
		handler.fail(ctx, err)
		return
	}
	var request cancelBookingRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	initiator, err := market.ParseInitiator(request.Initiator)
	if err != nil {
		handler.fail(ctx, err)
		return
	}
	booking, err := handler.services.Bookings.Cancel(ctx.Request.Context(), bookingID, initiator)
	if err != nil {
		handler.fail(ctx, err)
		return
	}
	handler.invalidateBalance(ctx, booking.UserID)
	ctx.JSON(http.StatusOK, toBookingResponse(booking))
}

func (handler *httpHandler) handleReleaseDeposit(ctx *gin.Context) {
	bookingID, err := market.NewBookingID(ctx.Param("id"))
	if err != nil {
		handler.fail(ctx, err)
		return
	}
	entry, err := handler.services.Bookings.ReleaseDeposit(ctx.Request.Context(), bookingID)
	if err != nil {
		handler.fail(ctx, err)
		return
	}
	handler.invalidateBalance(ctx, entry.UserID)
	ctx.JSON(http.StatusOK, toEntryResponse(entry))
}

func (handler *httpHandler) handleSweep(ctx *gin.Context) {
	now, _ := strconv.ParseInt(ctx.Query("now"), 10, 64)
	if now == 0 {
		now = timeNowUnix()
	}
	processed, err := handler.services.Bookings.ExpireSweep(ctx.Request.Context(), now)
	if err != nil {
		handler.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"expired": processed})
}

func (handler *httpHandler) handleVerifyLedger(ctx *gin.Context) {
	userID, err := market.NewUserID(ctx.Param("id"))
	if err != nil {
		handler.fail(ctx, err)
		return
	}
	if err := handler.services.Wallet.VerifyLedger(ctx.Request.Context(), userID); err != nil {
		if errors.Is(err, market.ErrLedgerChainBroken) {
			ctx.JSON(http.StatusConflict, gin.H{"valid": false, "error": err.Error()})
			return
		}
		handler.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"valid": true})
}

func (handler *httpHandler) invalidateBalance(ctx *gin.Context, userID market.UserID) {
	if handler.cache != nil {
		handler.cache.Invalidate(ctx.Request.Context(), userID)
	}
}
