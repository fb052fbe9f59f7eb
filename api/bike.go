package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/semanticallynull/rental-backend/bike"
	"github.com/semanticallynull/rental-backend/internal/fault"
)

func (a *API) bikesHandler(c *gin.Context) {
	bikes, err := a.svc.Bikes.GetBikes(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	status := bike.Status(c.Query("status"))
	resp := make([]bikeResponse, 0, len(bikes))
	for _, b := range bikes {
		if status != "" && b.Status != status {
			continue
		}
		resp = append(resp, toBikeResponse(b))
	}
	c.JSON(http.StatusOK, resp)
}

func (a *API) bikeHandler(c *gin.Context) {
	b, err := a.svc.Bikes.GetBike(c.Request.Context(), c.Param("label"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toBikeResponse(b))
}

type bikeResponse struct {
	ID           uuid.UUID   `json:"id"`
	Label        string      `json:"label"`
	DisplayName  string      `json:"displayName"`
	IMEI         string      `json:"bleId"`
	Lat          float64     `json:"latitude"`
	Lng          float64     `json:"longitude"`
	BatteryLevel int         `json:"batteryLevel"`
	Status       bike.Status `json:"status"`
	Available    bool        `json:"available"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

func toBikeResponse(b bike.Bike) bikeResponse {
	br := bikeResponse{
		ID:           b.ID,
		Label:        b.Label,
		IMEI:         b.IMEI,
		Lat:          b.Location.P.X,
		Lng:          b.Location.P.Y,
		BatteryLevel: b.BatteryLevel,
		Status:       b.Status,
		Available:    b.Status == bike.StatusAvailable,
		UpdatedAt:    b.UpdatedAt,
	}
	if b.DisplayName != nil {
		br.DisplayName = *b.DisplayName
	}
	return br
}

func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		writeError(c, fault.Invalid(name, "must be a UUID"))
		return uuid.Nil, false
	}
	return id, true
}

func parseOptionalID(field, raw string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fault.Invalid(field, "must be a UUID")
	}
	return &id, nil
}
