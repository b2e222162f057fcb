// Package httpapi frames the market core operations as a JSON API.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/roomly/core/pkg/market"
)

// BalanceCache is the optional read-through cache for the balance endpoint.
type BalanceCache interface {
	Get(ctx context.Context, userID market.UserID) (market.AmountCents, bool)
	Set(ctx context.Context, userID market.UserID, balance market.AmountCents)
	Invalidate(ctx context.Context, userID market.UserID)
}

// Services groups the market services the API fronts.
type Services struct {
	Wallet   *market.Wallet
	Bookings *market.Bookings
	Listings *market.Listings
}

type httpHandler struct {
	logger   *zap.Logger
	services Services
	cache    BalanceCache
}

// Run boots the HTTP server using the supplied configuration and blocks
// until the context is canceled.
func Run(ctx context.Context, cfg Config, logger *zap.Logger, services Services, cache BalanceCache) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	handler := &httpHandler{
		logger:   logger,
		services: services,
		cache:    cache,
	}
	router := setupRouter(cfg, handler)

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("httpapi listening", zap.String("addr", cfg.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func setupRouter(cfg Config, handler *httpHandler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if len(cfg.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Content-Type", "Origin", "Accept"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")

	api.GET("/users/:id/balance", handler.handleBalance)
	api.GET("/users/:id/entries", handler.handleEntries)
	api.POST("/wallet/charge", handler.handleCharge)
	api.POST("/wallet/topup", handler.handleTopup)
	api.POST("/wallet/withdraw", handler.handleWithdraw)

	api.POST("/listings", handler.handleCreateListing)
	api.POST("/listings/:id/approve", handler.handleApproveListing)
	api.POST("/listings/:id/hide", handler.handleForceHide)
	api.POST("/listings/:id/extend", handler.handleExtendListing)
	api.POST("/listings/:id/repost", handler.handleRepostListing)

	api.POST("/bookings", handler.handleCreateBooking)
	api.POST("/bookings/:id/confirm", handler.handleConfirmBooking)
	api.POST("/bookings/:id/cancel", handler.handleCancelBooking)
	api.POST("/bookings/:id/release-deposit", handler.handleReleaseDeposit)

	api.POST("/admin/sweep", handler.handleSweep)
	api.GET("/admin/users/:id/verify", handler.handleVerifyLedger)

	return router
}

// statusForError maps domain failures onto HTTP statuses. Only a conflict is
// retryable with the same request.
func statusForError(err error) int {
	switch {
	case errors.Is(err, market.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, market.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, market.ErrConflict),
		errors.Is(err, market.ErrListingNotAvailable),
		errors.Is(err, market.ErrInvalidState),
		errors.Is(err, market.ErrBookingExpired),
		errors.Is(err, market.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, market.ErrNotListingOwner):
		return http.StatusForbidden
	case errors.Is(err, market.ErrInvalidUserID),
		errors.Is(err, market.ErrInvalidListingID),
		errors.Is(err, market.ErrInvalidBookingID),
		errors.Is(err, market.ErrInvalidIdempotencyKey),
		errors.Is(err, market.ErrInvalidAmountCents),
		errors.Is(err, market.ErrInvalidActionKind),
		errors.Is(err, market.ErrInvalidInitiator),
		errors.Is(err, market.ErrInvalidHoldDuration):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (handler *httpHandler) fail(ctx *gin.Context, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		handler.logger.Error("request failed", zap.Error(err))
		ctx.JSON(status, gin.H{"error": "internal error"})
		return
	}
	ctx.JSON(status, gin.H{"error": err.Error(), "retryable": market.Retryable(err)})
}
