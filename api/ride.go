package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/semanticallynull/rental-backend/billing"
	"github.com/semanticallynull/rental-backend/ride"
)

type rideResponse struct {
	ID            uuid.UUID   `json:"id"`
	BikeID        uuid.UUID   `json:"bikeId"`
	UserID        uuid.UUID   `json:"userId"`
	ReservationID *uuid.UUID  `json:"reservationId,omitempty"`
	Status        ride.Status `json:"status"`
	StartTime     time.Time   `json:"startTime"`
	EndTime       *time.Time  `json:"endTime,omitempty"`
	Duration      int64       `json:"duration"`
	Distance      float64     `json:"distance"`
	Cost          *int64      `json:"cost,omitempty"`
	Charged       *int64      `json:"charged,omitempty"`
	Covered       bool        `json:"covered"`
}

func toRideResponse(r ride.Ride) rideResponse {
	return rideResponse{
		ID:            r.ID,
		BikeID:        r.BikeID,
		UserID:        r.UserID,
		ReservationID: r.ReservationID,
		Status:        r.Status,
		StartTime:     r.StartTime,
		EndTime:       r.EndTime,
		Duration:      r.Duration,
		Distance:      r.Distance,
		Cost:          r.Cost,
		Charged:       r.Charged,
		Covered:       r.Covered,
	}
}

func (a *API) listRidesHandler(c *gin.Context) {
	cust, ok := a.rider(c)
	if !ok {
		return
	}

	rides, err := a.svc.Rides.ListRides(c.Request.Context(), cust.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	resp := make([]rideResponse, 0, len(rides))
	for _, r := range rides {
		resp = append(resp, toRideResponse(r))
	}
	c.JSON(http.StatusOK, resp)
}

type currentRideResponse struct {
	Ride           rideResponse       `json:"ride"`
	ElapsedSeconds int64              `json:"elapsedSeconds"`
	Distance       float64            `json:"distance"`
	Estimate       billing.Settlement `json:"estimate"`
}

func (a *API) currentRideHandler(c *gin.Context) {
	cust, ok := a.rider(c)
	if !ok {
		return
	}

	s, err := a.svc.Tracker.Current(c.Request.Context(), cust.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, currentRideResponse{
		Ride:           toRideResponse(s.Ride),
		ElapsedSeconds: int64(s.Elapsed / time.Second),
		Distance:       s.Distance,
		Estimate:       s.Estimate,
	})
}

type positionRequest struct {
	IMEI         string  `json:"imei" binding:"required"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	BatteryLevel int     `json:"batteryLevel"`
}

// positionFeedHandler accepts a batch of fixes from the telematics provider.
func (a *API) positionFeedHandler(c *gin.Context) {
	var req []positionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "VALIDATION_ERROR", "message": err.Error()})
		return
	}

	ctx := c.Request.Context()
	accepted := 0
	for _, p := range req {
		err := a.svc.Tracker.RecordPosition(ctx, ride.Position{
			IMEI:         p.IMEI,
			Latitude:     p.Latitude,
			Longitude:    p.Longitude,
			BatteryLevel: p.BatteryLevel,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		accepted++
	}
	c.JSON(http.StatusOK, gin.H{"accepted": accepted})
}
