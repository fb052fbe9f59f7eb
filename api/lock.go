package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/semanticallynull/rental-backend/inspection"
	"github.com/semanticallynull/rental-backend/lock"
)

type createLockRequest struct {
	RideID     string             `json:"rideId" binding:"required"`
	Latitude   float64            `json:"latitude"`
	Longitude  float64            `json:"longitude"`
	Inspection inspection.Payload `json:"inspection"`
}

func (a *API) createLockHandler(c *gin.Context) {
	var req createLockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "VALIDATION_ERROR", "message": err.Error()})
		return
	}
	cust, ok := a.rider(c)
	if !ok {
		return
	}
	rideID, err := parseOptionalID("rideId", req.RideID)
	if err != nil {
		writeError(c, err)
		return
	}

	l, err := a.svc.Locks.RequestLock(c.Request.Context(), lock.RequestParams{
		RideID:     *rideID,
		UserID:     cust.ID,
		Latitude:   req.Latitude,
		Longitude:  req.Longitude,
		Inspection: req.Inspection,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, toLockResponse(l))
}

func (a *API) getLockHandler(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	cust, ok := a.rider(c)
	if !ok {
		return
	}

	l, err := a.svc.Locks.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if l.UserID != cust.ID {
		writeError(c, lock.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, toLockResponse(l))
}

func (a *API) cancelLockHandler(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	cust, ok := a.rider(c)
	if !ok {
		return
	}

	l, err := a.svc.Locks.Cancel(c.Request.Context(), id, cust.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toLockResponse(l))
}

func (a *API) listLocksHandler(c *gin.Context) {
	status := lock.Status(c.DefaultQuery("status", string(lock.StatusPending)))
	if status == "ALL" {
		status = ""
	}

	list, err := a.svc.Locks.List(c.Request.Context(), status)
	if err != nil {
		writeError(c, err)
		return
	}
	resp := make([]lockResponse, 0, len(list))
	for _, l := range list {
		resp = append(resp, toLockResponse(l))
	}
	c.JSON(http.StatusOK, resp)
}

func (a *API) resolveLockHandler(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "VALIDATION_ERROR", "message": err.Error()})
		return
	}

	l, out, err := a.svc.Locks.Resolve(c.Request.Context(), lock.ResolveParams{
		RequestID:       id,
		Decision:        lock.Decision(req.Decision),
		AdminID:         adminID(c),
		AdminNote:       req.AdminNote,
		RejectionReason: req.RejectionReason,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	resp := gin.H{"request": toLockResponse(l)}
	if out != nil {
		resp["ride"] = toRideResponse(out.Ride)
		resp["settlement"] = out.Settlement
	}
	c.JSON(http.StatusOK, resp)
}

type lockResponse struct {
	ID              uuid.UUID          `json:"id"`
	BikeID          uuid.UUID          `json:"bikeId"`
	UserID          uuid.UUID          `json:"userId"`
	RideID          uuid.UUID          `json:"rideId"`
	Status          lock.Status        `json:"status"`
	Latitude        float64            `json:"latitude"`
	Longitude       float64            `json:"longitude"`
	Inspection      inspection.Payload `json:"inspection"`
	AdminNote       *string            `json:"adminNote,omitempty"`
	RejectionReason *string            `json:"rejectionReason,omitempty"`
	CreatedAt       time.Time          `json:"createdAt"`
	ResolvedAt      *time.Time         `json:"resolvedAt,omitempty"`
}

func toLockResponse(l lock.Request) lockResponse {
	return lockResponse{
		ID:              l.ID,
		BikeID:          l.BikeID,
		UserID:          l.UserID,
		RideID:          l.RideID,
		Status:          l.Status,
		Latitude:        l.Location.P.X,
		Longitude:       l.Location.P.Y,
		Inspection:      l.Inspection,
		AdminNote:       l.AdminNote,
		RejectionReason: l.RejectionReason,
		CreatedAt:       l.CreatedAt,
		ResolvedAt:      l.ResolvedAt,
	}
}
