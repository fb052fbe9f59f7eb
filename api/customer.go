package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/semanticallynull/rental-backend/internal/auth0"
	"github.com/semanticallynull/rental-backend/internal/middleware"
	"github.com/semanticallynull/rental-backend/notify"
)

type customerResponse struct {
	ID       string `json:"id"`
	Email    string `json:"email,omitempty"`
	Name     string `json:"name,omitempty"`
	Verified bool   `json:"verified"`
}

// syncProfileHandler copies name and email from Auth0's userinfo onto the
// customer record.
func (a *API) syncProfileHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	cust, ok := a.rider(c)
	if !ok {
		return
	}
	token := middleware.BearerToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHORIZED", "message": "Access token required"})
		return
	}

	ctx := c.Request.Context()
	profile, err := a.svc.Profiles.Profile(ctx, token)
	switch {
	case errors.Is(err, auth0.ErrTokenRejected):
		c.JSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHORIZED", "message": "Access token rejected by identity provider"})
		return
	case err != nil:
		logger.ErrorContext(ctx, "Failed to fetch profile", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"code": "UPSTREAM_ERROR", "message": "Could not fetch profile"})
		return
	}
	if profile.Subject != cust.Auth0ID {
		logger.WarnContext(ctx, "profile subject mismatch", "subject", profile.Subject)
		c.JSON(http.StatusForbidden, gin.H{"code": "FORBIDDEN", "message": "Profile belongs to another identity"})
		return
	}
	name := profile.DisplayName()
	if err := a.svc.Customers.UpdateProfile(ctx, cust.Auth0ID, profile.Email, name); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, customerResponse{
		ID:       cust.ID.String(),
		Email:    profile.Email,
		Name:     name,
		Verified: cust.Verified,
	})
}

func (a *API) paymentSessionHandler(c *gin.Context) {
	cust, ok := a.rider(c)
	if !ok {
		return
	}

	session, err := a.svc.Payments.SetupSession(c.Request.Context(), cust)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

type verifyRequest struct {
	Verified *bool `json:"verified" binding:"required"`
}

func (a *API) verifyCustomerHandler(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "VALIDATION_ERROR", "message": err.Error()})
		return
	}

	ctx := c.Request.Context()
	if err := a.svc.Customers.SetVerified(ctx, id, *req.Verified); err != nil {
		writeError(c, err)
		return
	}
	cust, err := a.svc.Customers.GetCustomer(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	middleware.GetLogger(c).InfoContext(ctx, "customer verification changed",
		"customerId", id, "verified", cust.Verified, "admin", adminID(c))

	c.JSON(http.StatusOK, customerResponse{
		ID:       cust.ID.String(),
		Email:    cust.Email.String,
		Name:     cust.Name.String,
		Verified: cust.Verified,
	})
}

// websocketHandler subscribes the caller to its own events; admins receive
// the admin queue instead.
func (a *API) websocketHandler(c *gin.Context) {
	recipient := notify.Admins
	if !middleware.IsAdmin(c) {
		cust, ok := a.rider(c)
		if !ok {
			return
		}
		recipient = cust.ID.String()
	}

	if err := a.svc.Hub.Serve(c.Writer, c.Request, recipient); err != nil {
		middleware.GetLogger(c).WarnContext(c.Request.Context(), "websocket upgrade failed", "error", err)
	}
}
