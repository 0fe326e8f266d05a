package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mr1hm/disaster-sentinel/internal/models"
)

const configColumns = `id, name, description, disaster_type, region, severity_threshold, channels,
	cooldown_minutes, last_triggered, is_active, created_at, updated_at`

func (s *SQLiteDB) AddConfig(ctx context.Context, c *models.AlertConfig) error {
	region, channels, err := encodeConfig(c)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO alert_configs (`+configColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Description, string(c.DisasterType), region, c.SeverityThreshold, channels,
		c.CooldownPeriod, nullMillis(c.LastTriggered), c.IsActive, toMillis(c.CreatedAt), toMillis(c.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("error inserting alert config %s: %w", c.ID, err)
	}
	return nil
}

func (s *SQLiteDB) GetConfig(ctx context.Context, id string) (*models.AlertConfig, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+configColumns+` FROM alert_configs WHERE id = ?`, id)
	c, err := scanConfig(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading alert config %s: %w", id, err)
	}
	return c, nil
}

func (s *SQLiteDB) ListConfigs(ctx context.Context, opts ConfigFilter) ([]models.AlertConfig, error) {
	var (
		where []string
		args  []any
	)
	if opts.DisasterType != nil {
		where = append(where, "disaster_type = ?")
		args = append(args, string(*opts.DisasterType))
	}
	if opts.IsActive != nil {
		where = append(where, "is_active = ?")
		args = append(args, *opts.IsActive)
	}

	query := `SELECT ` + configColumns + ` FROM alert_configs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id"

	return s.queryConfigs(ctx, query, args...)
}

// UpdateConfig replaces the user-editable fields. last_triggered belongs to
// the matching engine and is not written here.
func (s *SQLiteDB) UpdateConfig(ctx context.Context, c *models.AlertConfig) (bool, error) {
	region, channels, err := encodeConfig(c)
	if err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE alert_configs
		SET name = ?, description = ?, disaster_type = ?, region = ?, severity_threshold = ?,
			channels = ?, cooldown_minutes = ?, is_active = ?, updated_at = ?
		WHERE id = ?`,
		c.Name, c.Description, string(c.DisasterType), region, c.SeverityThreshold,
		channels, c.CooldownPeriod, c.IsActive, toMillis(c.UpdatedAt), c.ID,
	)
	if err != nil {
		return false, fmt.Errorf("error updating alert config %s: %w", c.ID, err)
	}
	return affected(res)
}

func (s *SQLiteDB) DeleteConfig(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM alert_configs WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("error deleting alert config %s: %w", id, err)
	}
	return affected(res)
}

func (s *SQLiteDB) FindMatching(ctx context.Context, t models.DisasterType, severity int) ([]models.AlertConfig, error) {
	return s.queryConfigs(ctx, `
		SELECT `+configColumns+` FROM alert_configs
		WHERE is_active = 1
			AND disaster_type IN (?, ?)
			AND severity_threshold <= ?
		ORDER BY created_at, id`,
		string(t), string(models.DisasterTypeAll), severity,
	)
}

func (s *SQLiteDB) SetLastTriggered(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE alert_configs SET last_triggered = ?
		WHERE id = ? AND (last_triggered IS NULL OR last_triggered < ?)`,
		toMillis(at), id, toMillis(at),
	)
	if err != nil {
		return fmt.Errorf("error updating last_triggered for %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteDB) ClaimCooldown(ctx context.Context, id string, at time.Time) (bool, error) {
	now := toMillis(at)
	res, err := s.db.ExecContext(ctx, `
		UPDATE alert_configs SET last_triggered = ?
		WHERE id = ?
			AND (last_triggered IS NULL OR last_triggered <= ? - cooldown_minutes * 60000)`,
		now, id, now,
	)
	if err != nil {
		return false, fmt.Errorf("error claiming cooldown for %s: %w", id, err)
	}
	return affected(res)
}

func (s *SQLiteDB) ReleaseCooldown(ctx context.Context, id string, claimed time.Time, previous *time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE alert_configs SET last_triggered = ?
		WHERE id = ? AND last_triggered = ?`,
		nullMillis(previous), id, toMillis(claimed),
	)
	if err != nil {
		return false, fmt.Errorf("error releasing cooldown for %s: %w", id, err)
	}
	return affected(res)
}

func (s *SQLiteDB) queryConfigs(ctx context.Context, query string, args ...any) ([]models.AlertConfig, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying alert configs: %w", err)
	}
	defer rows.Close()

	configs := make([]models.AlertConfig, 0)
	for rows.Next() {
		c, err := scanConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning alert config: %w", err)
		}
		configs = append(configs, *c)
	}
	return configs, rows.Err()
}

func encodeConfig(c *models.AlertConfig) (string, string, error) {
	region, err := json.Marshal(c.Region)
	if err != nil {
		return "", "", fmt.Errorf("error encoding region: %w", err)
	}
	channels, err := json.Marshal(c.Channels)
	if err != nil {
		return "", "", fmt.Errorf("error encoding channels: %w", err)
	}
	return string(region), string(channels), nil
}

func scanConfig(row scanner) (*models.AlertConfig, error) {
	var (
		c                     models.AlertConfig
		typ, region, channels string
		createdAt, updatedAt  int64
		lastTriggered         sql.NullInt64
	)
	err := row.Scan(
		&c.ID, &c.Name, &c.Description, &typ, &region, &c.SeverityThreshold, &channels,
		&c.CooldownPeriod, &lastTriggered, &c.IsActive, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.DisasterType = models.DisasterType(typ)
	c.LastTriggered = timePtr(lastTriggered)
	c.CreatedAt = fromMillis(createdAt)
	c.UpdatedAt = fromMillis(updatedAt)

	if err := json.Unmarshal([]byte(region), &c.Region); err != nil {
		return nil, fmt.Errorf("error decoding region: %w", err)
	}
	if err := json.Unmarshal([]byte(channels), &c.Channels); err != nil {
		return nil, fmt.Errorf("error decoding channels: %w", err)
	}
	return &c, nil
}
