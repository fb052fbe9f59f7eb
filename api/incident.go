package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/semanticallynull/rental-backend/incident"
)

type reportIncidentRequest struct {
	BikeID      string `json:"bikeId" binding:"required"`
	Type        string `json:"type" binding:"required"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
}

func (a *API) reportIncidentHandler(c *gin.Context) {
	var req reportIncidentRequest
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

	inc, err := a.svc.Incidents.ReportIncident(c.Request.Context(), incident.ReportParams{
		BikeID:      *bikeID,
		ReporterID:  cust.ID,
		Type:        incident.Type(req.Type),
		Severity:    incident.Severity(req.Severity),
		Description: req.Description,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, inc)
}

func (a *API) listIncidentsHandler(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	incs, err := a.svc.Incidents.List(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if incs == nil {
		incs = []incident.Incident{}
	}
	c.JSON(http.StatusOK, incs)
}

func (a *API) clearMaintenanceHandler(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := a.svc.Incidents.ClearMaintenance(c.Request.Context(), id, adminID(c)); err != nil {
		writeError(c, err)
		return
	}
	b, err := a.svc.Bikes.GetBikeByID(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBikeResponse(b))
}
