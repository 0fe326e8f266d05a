package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mr1hm/disaster-sentinel/internal/geo"
	"github.com/mr1hm/disaster-sentinel/internal/ingestion"
	"github.com/mr1hm/disaster-sentinel/internal/models"
	"github.com/mr1hm/disaster-sentinel/internal/repository"
)

const (
	defaultListLimit = 20
	maxListLimit     = 500
	defaultRadius    = 50
)

type createDisasterRequest struct {
	Type         string           `json:"type"`
	Location     *models.Location `json:"location"`
	Severity     int              `json:"severity"`
	Description  string           `json:"description"`
	AffectedArea float64          `json:"affectedArea"`
	Status       string           `json:"status"`
	StartTime    *time.Time       `json:"startTime"`
	Readings     []models.Reading `json:"readings"`
}

func (h *Handler) listDisasters(c *gin.Context) {
	filter := repository.DisasterFilter{
		Limit: defaultListLimit,
	}

	if t := c.Query("type"); t != "" {
		dt, ok := models.ParseDisasterType(t)
		if !ok {
			h.respondError(c, fmt.Errorf("%w: unknown disaster type %q", models.ErrInvalidInput, t))
			return
		}
		filter.Type = &dt
	}
	if s := c.Query("severity"); s != "" {
		sev, err := strconv.Atoi(s)
		if err != nil {
			h.respondError(c, fmt.Errorf("%w: severity must be an integer", models.ErrInvalidInput))
			return
		}
		filter.MinSeverity = &sev
	}
	if s := c.Query("status"); s != "" {
		st, ok := models.ParseStatus(s)
		if !ok {
			h.respondError(c, fmt.Errorf("%w: unknown status %q", models.ErrInvalidInput, s))
			return
		}
		filter.Status = &st
	}
	if s := c.Query("startDate"); s != "" {
		t, err := parseDate(s)
		if err != nil {
			h.respondError(c, err)
			return
		}
		filter.Since = &t
	}
	if s := c.Query("endDate"); s != "" {
		t, err := parseDate(s)
		if err != nil {
			h.respondError(c, err)
			return
		}
		filter.Until = &t
	}
	if s := c.Query("alertsSent"); s != "" {
		sent, err := parseBool("alertsSent", s)
		if err != nil {
			h.respondError(c, err)
			return
		}
		filter.AlertsSent = &sent
	}
	if l := c.Query("limit"); l != "" {
		lim, err := strconv.Atoi(l)
		if err != nil || lim < 1 || lim > maxListLimit {
			h.respondError(c, fmt.Errorf("%w: limit must be an integer between 1 and %d", models.ErrInvalidInput, maxListLimit))
			return
		}
		filter.Limit = lim
	}
	if o := c.Query("offset"); o != "" {
		off, err := strconv.Atoi(o)
		if err != nil || off < 0 {
			h.respondError(c, fmt.Errorf("%w: offset must be a non-negative integer", models.ErrInvalidInput))
			return
		}
		filter.Offset = off
	}

	disasters, err := h.disasters.List(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}

	if strings.EqualFold(c.Query("format"), "geojson") {
		c.Header("Content-Type", "application/geo+json")
		c.JSON(http.StatusOK, toGeoJSON(disasters))
		return
	}
	respondList(c, disasters)
}

// parseDate accepts RFC 3339 timestamps and plain dates.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q", models.ErrInvalidInput, s)
	}
	return t, nil
}

func parseBool(name, s string) (bool, error) {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be true or false", models.ErrInvalidInput, name)
	}
	return b, nil
}

func (h *Handler) nearbyDisasters(c *gin.Context) {
	lon, errLon := strconv.ParseFloat(c.Query("longitude"), 64)
	lat, errLat := strconv.ParseFloat(c.Query("latitude"), 64)
	if errLon != nil || errLat != nil || !geo.ValidCoordinates(lat, lon) {
		h.respondError(c, fmt.Errorf("%w: please provide valid longitude and latitude", models.ErrInvalidInput))
		return
	}

	radius := float64(defaultRadius)
	if r := c.Query("radius"); r != "" {
		v, err := strconv.ParseFloat(r, 64)
		if err != nil || v <= 0 {
			h.respondError(c, fmt.Errorf("%w: radius must be a positive number", models.ErrInvalidInput))
			return
		}
		radius = v
	}

	unit, ok := geo.ParseUnit(c.Query("unit"))
	if !ok {
		h.respondError(c, fmt.Errorf("%w: unit must be km or mi", models.ErrInvalidInput))
		return
	}

	disasters, err := h.disasters.Nearby(c.Request.Context(), repository.NearbyQuery{
		Longitude: lon,
		Latitude:  lat,
		Distance:  radius,
		Unit:      unit,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondList(c, disasters)
}

func (h *Handler) getDisaster(c *gin.Context) {
	d, err := h.disasters.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	respond(c, http.StatusOK, d)
}

func (h *Handler) createDisaster(c *gin.Context) {
	var req createDisasterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, fmt.Errorf("%w: %v", models.ErrInvalidInput, err))
		return
	}

	dt, ok := models.ParseDisasterType(req.Type)
	if !ok {
		h.respondError(c, fmt.Errorf("%w: unknown disaster type %q", models.ErrInvalidInput, req.Type))
		return
	}
	if req.Location == nil {
		h.respondError(c, fmt.Errorf("%w: location is required", models.ErrInvalidInput))
		return
	}
	if req.AffectedArea < 0 {
		h.respondError(c, fmt.Errorf("%w: affectedArea cannot be negative", models.ErrInvalidInput))
		return
	}

	d := &models.DisasterEvent{
		Type:         dt,
		Location:     *req.Location,
		Severity:     req.Severity,
		Description:  req.Description,
		AffectedArea: req.AffectedArea,
		Readings:     req.Readings,
	}
	if req.Status != "" {
		st, ok := models.ParseStatus(req.Status)
		if !ok {
			h.respondError(c, fmt.Errorf("%w: unknown status %q", models.ErrInvalidInput, req.Status))
			return
		}
		d.Status = st
	}
	if req.StartTime != nil {
		d.StartTime = req.StartTime.UTC()
	}

	if err := h.disasters.Create(c.Request.Context(), d); err != nil {
		h.respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, d)
}

func (h *Handler) updateDisaster(c *gin.Context) {
	var patch ingestion.DisasterPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		h.respondError(c, fmt.Errorf("%w: %v", models.ErrInvalidInput, err))
		return
	}
	if patch.Status != nil {
		st, ok := models.ParseStatus(string(*patch.Status))
		if !ok {
			h.respondError(c, fmt.Errorf("%w: unknown status %q", models.ErrInvalidInput, *patch.Status))
			return
		}
		patch.Status = &st
	}

	d, err := h.disasters.Update(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respond(c, http.StatusOK, d)
}

func (h *Handler) deleteDisaster(c *gin.Context) {
	if err := h.disasters.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{})
}

func (h *Handler) addReading(c *gin.Context) {
	var r models.Reading
	if err := c.ShouldBindJSON(&r); err != nil {
		h.respondError(c, fmt.Errorf("%w: %v", models.ErrInvalidInput, err))
		return
	}

	d, err := h.disasters.AddReading(c.Request.Context(), c.Param("id"), r)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respond(c, http.StatusOK, d)
}

func (h *Handler) simulate(c *gin.Context) {
	raw := map[string]any{}
	if err := c.ShouldBindJSON(&raw); err != nil {
		h.respondError(c, fmt.Errorf("%w: %v", models.ErrInvalidInput, err))
		return
	}

	typ := c.Param("type")
	d, err := h.disasters.Simulate(c.Request.Context(), typ, raw)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if d == nil {
		respondMessage(c, http.StatusOK, "Simulation processed but no disaster was created (below threshold)", nil)
		return
	}

	label := strings.ToUpper(typ[:1]) + strings.ToLower(typ[1:])
	respondMessage(c, http.StatusCreated, label+" simulation processed successfully", d)
}
