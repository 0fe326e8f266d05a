package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mr1hm/disaster-sentinel/internal/models"
	"github.com/mr1hm/disaster-sentinel/internal/repository"
)

func (h *Handler) listConfigs(c *gin.Context) {
	var filter repository.ConfigFilter

	if t := c.Query("disasterType"); t != "" {
		dt, ok := models.ParseAlertTarget(t)
		if !ok {
			h.respondError(c, fmt.Errorf("%w: unknown disaster type %q", models.ErrInvalidInput, t))
			return
		}
		filter.DisasterType = &dt
	}
	if a := c.Query("isActive"); a != "" {
		active, err := parseBool("isActive", a)
		if err != nil {
			h.respondError(c, err)
			return
		}
		filter.IsActive = &active
	}

	configs, err := h.configs.ListConfigs(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, fmt.Errorf("%w: %v", models.ErrPersistence, err))
		return
	}
	respondList(c, configs)
}

func (h *Handler) getConfig(c *gin.Context) {
	cfg, err := h.loadConfig(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respond(c, http.StatusOK, cfg)
}

func (h *Handler) loadConfig(c *gin.Context) (*models.AlertConfig, error) {
	id := c.Param("id")
	cfg, err := h.configs.GetConfig(c.Request.Context(), id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}
	if cfg == nil {
		return nil, fmt.Errorf("%w: alert configuration %s", models.ErrNotFound, id)
	}
	return cfg, nil
}

// bindConfig decodes the request body on top of cfg, so absent fields keep
// their current or default values. Server-owned fields are restored after.
func bindConfig(c *gin.Context, cfg *models.AlertConfig) error {
	owned := *cfg
	if err := c.ShouldBindJSON(cfg); err != nil {
		return fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}
	cfg.ID = owned.ID
	cfg.LastTriggered = owned.LastTriggered
	cfg.CreatedAt = owned.CreatedAt

	t, ok := models.ParseAlertTarget(string(cfg.DisasterType))
	if !ok {
		return fmt.Errorf("%w: unknown disaster type %q", models.ErrInvalidInput, cfg.DisasterType)
	}
	cfg.DisasterType = t
	return cfg.Validate()
}

func (h *Handler) createConfig(c *gin.Context) {
	now := h.clock.Now().UTC()
	cfg := models.AlertConfig{
		ID:                uuid.NewString(),
		SeverityThreshold: models.DefaultSeverityThreshold,
		Channels:          models.DefaultChannels(),
		CooldownPeriod:    models.DefaultCooldownMinutes,
		IsActive:          true,
		CreatedAt:         now,
	}
	if err := bindConfig(c, &cfg); err != nil {
		h.respondError(c, err)
		return
	}
	cfg.UpdatedAt = now

	if err := h.configs.AddConfig(c.Request.Context(), &cfg); err != nil {
		h.respondError(c, fmt.Errorf("%w: %v", models.ErrPersistence, err))
		return
	}
	h.logger.Info("alert config created", "config_id", cfg.ID, "type", cfg.DisasterType, "threshold", cfg.SeverityThreshold)
	respond(c, http.StatusCreated, cfg)
}

func (h *Handler) updateConfig(c *gin.Context) {
	cfg, err := h.loadConfig(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if err := bindConfig(c, cfg); err != nil {
		h.respondError(c, err)
		return
	}
	cfg.UpdatedAt = h.clock.Now().UTC()

	ok, err := h.configs.UpdateConfig(c.Request.Context(), cfg)
	if err != nil {
		h.respondError(c, fmt.Errorf("%w: %v", models.ErrPersistence, err))
		return
	}
	if !ok {
		h.respondError(c, fmt.Errorf("%w: alert configuration %s", models.ErrNotFound, cfg.ID))
		return
	}
	respond(c, http.StatusOK, cfg)
}

func (h *Handler) deleteConfig(c *gin.Context) {
	id := c.Param("id")
	ok, err := h.configs.DeleteConfig(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, fmt.Errorf("%w: %v", models.ErrPersistence, err))
		return
	}
	if !ok {
		h.respondError(c, fmt.Errorf("%w: alert configuration %s", models.ErrNotFound, id))
		return
	}
	respond(c, http.StatusOK, gin.H{})
}

// triggerAlerts runs the matching pass inline. A disaster that was already
// processed is reported as success with nothing dispatched.
func (h *Handler) triggerAlerts(c *gin.Context) {
	id := c.Param("disasterId")
	res, err := h.matcher.Process(c.Request.Context(), id)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			err = fmt.Errorf("error processing alerts: %w", err)
		}
		h.respondError(c, err)
		return
	}
	respondMessage(c, http.StatusOK, "Alert processing triggered successfully", gin.H{
		"disasterId":       res.DisasterID,
		"alreadyProcessed": res.AlreadyProcessed,
		"matched":          res.Matched,
		"dispatched":       res.Dispatched,
		"suppressed":       res.Suppressed,
		"failed":           res.Failed,
	})
}

func (h *Handler) listDispatches(c *gin.Context) {
	id := c.Param("disasterId")
	dispatches, err := h.dispatches.ListDispatches(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, fmt.Errorf("%w: %v", models.ErrPersistence, err))
		return
	}
	respondList(c, dispatches)
}
