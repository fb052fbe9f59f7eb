package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/semanticallynull/rental-backend/internal/middleware"
	"github.com/semanticallynull/rental-backend/notify"
	"github.com/semanticallynull/rental-backend/payment"
	"github.com/semanticallynull/rental-backend/wallet"
)

func (a *API) walletHandler(c *gin.Context) {
	cust, ok := a.rider(c)
	if !ok {
		return
	}

	sum, err := a.svc.Wallet.Summary(c.Request.Context(), cust.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	if sum.Transactions == nil {
		sum.Transactions = []wallet.Transaction{}
	}
	c.JSON(http.StatusOK, sum)
}

type depositRequest struct {
	Amount        int64  `json:"amount" binding:"required"`
	PaymentMethod string `json:"paymentMethod" binding:"required"`
}

func (a *API) createDepositHandler(c *gin.Context) {
	var req depositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "VALIDATION_ERROR", "message": err.Error()})
		return
	}
	cust, ok := a.rider(c)
	if !ok {
		return
	}

	t, err := a.svc.Wallet.InitiateDeposit(c.Request.Context(), a.svc.Payments, cust.ID, req.Amount, req.PaymentMethod)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, t)
}

// stripeWebhookHandler settles PENDING deposits. Replays of an already
// settled intent are acknowledged so Stripe stops retrying.
func (a *API) stripeWebhookHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "VALIDATION_ERROR", "message": err.Error()})
		return
	}
	ref, outcome, err := payment.ParseWebhook(body, c.GetHeader("Stripe-Signature"), a.cfg.StripeWebhookSecret)
	if err != nil {
		writeError(c, err)
		return
	}

	ctx := c.Request.Context()
	var t wallet.Transaction
	switch outcome {
	case payment.Succeeded:
		t, err = a.svc.Wallet.CompleteDeposit(ctx, ref)
	case payment.Failed:
		t, err = a.svc.Wallet.FailDeposit(ctx, ref)
	default:
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}
	switch {
	case errors.Is(err, wallet.ErrAlreadySettled), errors.Is(err, wallet.ErrNotFound):
		logger.InfoContext(ctx, "webhook for settled or unknown deposit", "reference", ref, "error", err)
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	case err != nil:
		writeError(c, err)
		return
	}

	notify.Send(ctx, a.svc.Notifier, logger, t.UserID.String(), notify.Event{
		Type:      notify.DepositSettled,
		SubjectID: t.ID.String(),
		Data:      map[string]any{"status": string(t.Status), "amount": t.Amount},
	})
	c.JSON(http.StatusOK, gin.H{"received": true})
}

type adjustmentRequest struct {
	Amount    int64  `json:"amount" binding:"required"`
	Reference string `json:"reference" binding:"required"`
}

func (a *API) adminRefundHandler(c *gin.Context) {
	a.adjust(c, a.svc.Wallet.Refund)
}

func (a *API) adminDepositHandler(c *gin.Context) {
	a.adjust(c, a.svc.Wallet.Deposit)
}

func (a *API) adminSecurityDepositHandler(c *gin.Context) {
	a.adjust(c, a.svc.Wallet.LodgeSecurityDeposit)
}

type adjustFunc func(ctx context.Context, userID uuid.UUID, amount int64, reference string) (wallet.Transaction, error)

func (a *API) adjust(c *gin.Context, fn adjustFunc) {
	userID, ok := pathID(c, "userId")
	if !ok {
		return
	}
	var req adjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "VALIDATION_ERROR", "message": err.Error()})
		return
	}
	if _, err := a.svc.Customers.GetCustomer(c.Request.Context(), userID); err != nil {
		writeError(c, err)
		return
	}

	t, err := fn(c.Request.Context(), userID, req.Amount, req.Reference)
	if err != nil {
		writeError(c, err)
		return
	}
	middleware.GetLogger(c).InfoContext(c.Request.Context(), "wallet adjusted",
		"userId", userID, "type", t.Type, "amount", t.Amount, "admin", adminID(c))
	c.JSON(http.StatusCreated, t)
}
