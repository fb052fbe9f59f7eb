package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/semanticallynull/rental-backend/bike"
	"github.com/semanticallynull/rental-backend/customer"
	"github.com/semanticallynull/rental-backend/incident"
	"github.com/semanticallynull/rental-backend/internal/auth0"
	"github.com/semanticallynull/rental-backend/internal/fault"
	"github.com/semanticallynull/rental-backend/internal/middleware"
	"github.com/semanticallynull/rental-backend/lock"
	"github.com/semanticallynull/rental-backend/notify"
	"github.com/semanticallynull/rental-backend/payment"
	"github.com/semanticallynull/rental-backend/reservation"
	"github.com/semanticallynull/rental-backend/ride"
	"github.com/semanticallynull/rental-backend/unlock"
	"github.com/semanticallynull/rental-backend/wallet"
)

// PaymentGateway starts deposits and lets riders save payment methods.
type PaymentGateway interface {
	wallet.Gateway
	SetupSession(ctx context.Context, c *customer.Customer) (payment.SetupSession, error)
}

type Services struct {
	Bikes        bike.Registry
	Customers    customer.Store
	Reservations *reservation.Manager
	Unlocks      *unlock.Gate
	Rides        ride.Store
	Tracker      *ride.Tracker
	Locks        *lock.Gate
	Incidents    *incident.Hook
	Wallet       *wallet.Ledger
	Payments     PaymentGateway
	Profiles     auth0.Client
	Hub          *notify.Hub
	Notifier     notify.Notifier
}

type Config struct {
	// Auth authenticates every rider and admin route.
	Auth gin.HandlerFunc

	MetricsUsername string
	MetricsPassword string

	// FeedUsername and FeedPassword guard the telematics position feed.
	FeedUsername string
	FeedPassword string

	StripeWebhookSecret string
}

type API struct {
	r   *gin.Engine
	svc Services
	cfg Config
}

func New(svc Services, cfg Config, logger *slog.Logger, reg *prometheus.Registry) *API {
	a := &API{
		r:   gin.New(),
		svc: svc,
		cfg: cfg,
	}

	a.r.Use(gin.Recovery(), middleware.Tracing("rental-backend"),
		middleware.Logging(logger, "/health", "/metrics"), middleware.Metrics(reg))

	a.r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	a.r.GET("/metrics",
		gin.BasicAuth(gin.Accounts{cfg.MetricsUsername: cfg.MetricsPassword}),
		gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	a.r.POST("/feed/positions",
		gin.BasicAuth(gin.Accounts{cfg.FeedUsername: cfg.FeedPassword}),
		a.positionFeedHandler)
	a.r.POST("/webhooks/stripe", a.stripeWebhookHandler)

	rider := a.r.Group("/")
	rider.Use(cfg.Auth)
	{
		rider.GET("/bikes", a.bikesHandler)
		rider.GET("/bikes/:label", a.bikeHandler)

		rider.POST("/reservations", a.createReservationHandler)
		rider.GET("/reservations", a.listReservationsHandler)
		rider.POST("/reservations/:id/cancel", a.cancelReservationHandler)

		rider.POST("/unlock-requests", a.createUnlockHandler)
		rider.GET("/unlock-requests/:id", a.getUnlockHandler)
		rider.POST("/unlock-requests/:id/cancel", a.cancelUnlockHandler)

		rider.GET("/rides", a.listRidesHandler)
		rider.GET("/rides/current", a.currentRideHandler)

		rider.POST("/lock-requests", a.createLockHandler)
		rider.GET("/lock-requests/:id", a.getLockHandler)
		rider.POST("/lock-requests/:id/cancel", a.cancelLockHandler)

		rider.POST("/incidents", a.reportIncidentHandler)

		rider.GET("/wallet", a.walletHandler)
		rider.POST("/wallet/deposits", a.createDepositHandler)

		rider.POST("/me/profile/sync", a.syncProfileHandler)
		rider.POST("/me/payment-session", a.paymentSessionHandler)

		rider.GET("/ws", a.websocketHandler)
	}

	admin := a.r.Group("/admin")
	admin.Use(cfg.Auth, middleware.RequireAdmin())
	{
		admin.GET("/unlock-requests", a.listUnlocksHandler)
		admin.POST("/unlock-requests/:id/resolve", a.resolveUnlockHandler)
		admin.GET("/lock-requests", a.listLocksHandler)
		admin.POST("/lock-requests/:id/resolve", a.resolveLockHandler)
		admin.GET("/bikes/:id/incidents", a.listIncidentsHandler)
		admin.POST("/bikes/:id/clear-maintenance", a.clearMaintenanceHandler)
		admin.POST("/customers/:id/verify", a.verifyCustomerHandler)
		admin.POST("/wallet/:userId/refund", a.adminRefundHandler)
		admin.POST("/wallet/:userId/deposit", a.adminDepositHandler)
		admin.POST("/wallet/:userId/security-deposit", a.adminSecurityDepositHandler)
	}

	return a
}

func (a *API) Router() *gin.Engine {
	return a.r
}

// writeError maps domain error categories onto HTTP responses.
func writeError(c *gin.Context, err error) {
	var ve fault.ValidationError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"code": "VALIDATION_ERROR", "message": ve.Message, "field": ve.Field})
	case errors.Is(err, fault.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "NOT_FOUND", "message": err.Error()})
	case errors.Is(err, fault.ErrAlreadyResolved):
		c.JSON(http.StatusConflict, gin.H{"code": "ALREADY_RESOLVED", "message": err.Error()})
	case errors.Is(err, fault.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"code": "CONFLICT", "message": err.Error()})
	case errors.Is(err, fault.ErrIneligible):
		c.JSON(http.StatusForbidden, gin.H{"code": "INELIGIBLE", "message": err.Error()})
	case errors.Is(err, fault.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"code": "FORBIDDEN", "message": err.Error()})
	case errors.Is(err, fault.ErrInsufficientFunds):
		c.JSON(http.StatusPaymentRequired, gin.H{"code": "INSUFFICIENT_FUNDS", "message": err.Error()})
	default:
		middleware.GetLogger(c).ErrorContext(c.Request.Context(), "request failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL", "message": "internal error"})
	}
}

// rider resolves the authenticated caller to a customer record, creating one
// the first time an Auth0 identity is seen.
func (a *API) rider(c *gin.Context) (*customer.Customer, bool) {
	auth0ID, ok := middleware.GetAuth0ID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHORIZED", "message": "Authentication required"})
		return nil, false
	}

	ctx := c.Request.Context()
	cust, err := a.svc.Customers.GetCustomerByAuth0ID(ctx, auth0ID)
	if errors.Is(err, customer.ErrNotFound) {
		cust, err = a.svc.Customers.CreateCustomer(ctx, auth0ID)
	}
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	return cust, true
}

func adminID(c *gin.Context) string {
	id, _ := middleware.GetAuth0ID(c)
	return id
}
