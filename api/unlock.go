package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/semanticallynull/rental-backend/inspection"
	"github.com/semanticallynull/rental-backend/unlock"
)

type createUnlockRequest struct {
	BikeID        string             `json:"bikeId" binding:"required"`
	ReservationID string             `json:"reservationId"`
	PaymentMethod string             `json:"paymentMethod" binding:"required"`
	Inspection    inspection.Payload `json:"inspection"`
}

func (a *API) createUnlockHandler(c *gin.Context) {
	var req createUnlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "VALIDATION_ERROR", "message": err.Error()})
		return
	}
	cust, ok := a.rider(c)
	if !ok {
		return
	}

	bikeID, err := parseOptionalID("bikeId", req.BikeID)
	if err != nil {
		writeError(c, err)
		return
	}
	reservationID, err := parseOptionalID("reservationId", req.ReservationID)
	if err != nil {
		writeError(c, err)
		return
	}

	u, err := a.svc.Unlocks.RequestUnlock(c.Request.Context(), unlock.RequestParams{
		BikeID:        *bikeID,
		UserID:        cust.ID,
		ReservationID: reservationID,
		Inspection:    req.Inspection,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, toUnlockResponse(u))
}

func (a *API) getUnlockHandler(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	cust, ok := a.rider(c)
	if !ok {
		return
	}

	u, err := a.svc.Unlocks.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if u.UserID != cust.ID {
		writeError(c, unlock.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, toUnlockResponse(u))
}

func (a *API) cancelUnlockHandler(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	cust, ok := a.rider(c)
	if !ok {
		return
	}

	u, err := a.svc.Unlocks.Cancel(c.Request.Context(), id, cust.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toUnlockResponse(u))
}

func (a *API) listUnlocksHandler(c *gin.Context) {
	status := unlock.Status(c.DefaultQuery("status", string(unlock.StatusPending)))
	if status == "ALL" {
		status = ""
	}

	list, err := a.svc.Unlocks.List(c.Request.Context(), status)
	if err != nil {
		writeError(c, err)
		return
	}
	resp := make([]unlockResponse, 0, len(list))
	for _, u := range list {
		resp = append(resp, toUnlockResponse(u))
	}
	c.JSON(http.StatusOK, resp)
}

type resolveRequest struct {
	Decision        string `json:"decision" binding:"required"`
	AdminNote       string `json:"adminNote"`
	RejectionReason string `json:"rejectionReason"`
}

func (a *API) resolveUnlockHandler(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "VALIDATION_ERROR", "message": err.Error()})
		return
	}

	u, r, err := a.svc.Unlocks.Resolve(c.Request.Context(), unlock.ResolveParams{
		RequestID:       id,
		Decision:        unlock.Decision(req.Decision),
		AdminID:         adminID(c),
		AdminNote:       req.AdminNote,
		RejectionReason: req.RejectionReason,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	resp := gin.H{"request": toUnlockResponse(u)}
	if r != nil {
		resp["ride"] = toRideResponse(*r)
	}
	c.JSON(http.StatusOK, resp)
}

type unlockResponse struct {
	ID              uuid.UUID          `json:"id"`
	BikeID          uuid.UUID          `json:"bikeId"`
	UserID          uuid.UUID          `json:"userId"`
	ReservationID   *uuid.UUID         `json:"reservationId,omitempty"`
	Status          unlock.Status      `json:"status"`
	Inspection      inspection.Payload `json:"inspection"`
	PaymentMethod   string             `json:"paymentMethod"`
	AdminNote       *string            `json:"adminNote,omitempty"`
	RejectionReason *string            `json:"rejectionReason,omitempty"`
	RideID          *uuid.UUID         `json:"rideId,omitempty"`
	CreatedAt       time.Time          `json:"createdAt"`
	ResolvedAt      *time.Time         `json:"resolvedAt,omitempty"`
}

func toUnlockResponse(u unlock.Request) unlockResponse {
	return unlockResponse{
		ID:              u.ID,
		BikeID:          u.BikeID,
		UserID:          u.UserID,
		ReservationID:   u.ReservationID,
		Status:          u.Status,
		Inspection:      u.Inspection,
		PaymentMethod:   u.PaymentMethod,
		AdminNote:       u.AdminNote,
		RejectionReason: u.RejectionReason,
		RideID:          u.RideID,
		CreatedAt:       u.CreatedAt,
		ResolvedAt:      u.ResolvedAt,
	}
}
