package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/semanticallynull/rental-backend/internal/fault"
	"github.com/semanticallynull/rental-backend/pricing"
	"github.com/semanticallynull/rental-backend/reservation"
)

type createReservationRequest struct {
	BikeID      string `json:"bikeId" binding:"required"`
	PackageType string `json:"packageType" binding:"required"`
	StartTime   string `json:"startTime" binding:"required"`
}

func (a *API) createReservationHandler(c *gin.Context) {
	var req createReservationRequest
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
	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		writeError(c, fault.Invalid("startTime", "must be RFC3339"))
		return
	}

	res, err := a.svc.Reservations.Reserve(c.Request.Context(), reservation.ReserveParams{
		BikeID:      *bikeID,
		UserID:      cust.ID,
		PackageType: pricing.Package(req.PackageType),
		StartTime:   start,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toReservationResponse(res))
}

func (a *API) listReservationsHandler(c *gin.Context) {
	cust, ok := a.rider(c)
	if !ok {
		return
	}

	list, err := a.svc.Reservations.List(c.Request.Context(), cust.ID)
	if err != nil {
		writeError(c, err)
		return
	}

	status := reservation.Status(c.Query("status"))
	resp := make([]reservationResponse, 0, len(list))
	for _, r := range list {
		if status != "" && r.Status != status {
			continue
		}
		resp = append(resp, toReservationResponse(r))
	}
	c.JSON(http.StatusOK, resp)
}

func (a *API) cancelReservationHandler(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	cust, ok := a.rider(c)
	if !ok {
		return
	}

	res, err := a.svc.Reservations.Cancel(c.Request.Context(), id, cust.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toReservationResponse(res))
}

type reservationResponse struct {
	ID           string             `json:"id"`
	BikeID       string             `json:"bikeId"`
	UserID       string             `json:"userId"`
	StartTime    time.Time          `json:"startTime"`
	EndTime      time.Time          `json:"endTime"`
	PackageType  pricing.Package    `json:"packageType"`
	Status       reservation.Status `json:"status"`
	QuotedCost   int64              `json:"quotedCost"`
	CancelReason *string            `json:"cancelReason,omitempty"`
	CreatedAt    time.Time          `json:"createdAt"`
}

func toReservationResponse(r reservation.Reservation) reservationResponse {
	return reservationResponse{
		ID:           r.ID.String(),
		BikeID:       r.BikeID.String(),
		UserID:       r.UserID.String(),
		StartTime:    r.StartTime,
		EndTime:      r.EndTime,
		PackageType:  r.PackageType,
		Status:       r.Status,
		QuotedCost:   r.QuotedCost,
		CancelReason: r.CancelReason,
		CreatedAt:    r.CreatedAt,
	}
}
