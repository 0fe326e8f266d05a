package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mr1hm/disaster-sentinel/internal/models"
)

func (s *SQLiteDB) AddDispatch(ctx context.Context, p *models.AlertPayload) error {
	channels := p.Channels
	if channels == nil {
		channels = []models.ChannelDelivery{}
	}
	raw, err := json.Marshal(channels)
	if err != nil {
		return fmt.Errorf("error encoding channels: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO alert_dispatches (
			id, disaster_id, alert_config_id, disaster_type, severity,
			longitude, latitude, description, channels, dispatched_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.DisasterID, p.AlertConfigID, string(p.DisasterType), p.Severity,
		p.Location.Longitude, p.Location.Latitude, p.Description, string(raw), toMillis(p.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("error inserting dispatch %s: %w", p.ID, err)
	}
	return nil
}

func (s *SQLiteDB) ListDispatches(ctx context.Context, disasterID string) ([]models.AlertPayload, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, disaster_id, alert_config_id, disaster_type, severity,
			longitude, latitude, description, channels, dispatched_at
		FROM alert_dispatches
		WHERE disaster_id = ?
		ORDER BY dispatched_at, id`, disasterID)
	if err != nil {
		return nil, fmt.Errorf("error querying dispatches: %w", err)
	}
	defer rows.Close()

	out := make([]models.AlertPayload, 0)
	for rows.Next() {
		var (
			p             models.AlertPayload
			typ, channels string
			at            int64
		)
		if err := rows.Scan(
			&p.ID, &p.DisasterID, &p.AlertConfigID, &typ, &p.Severity,
			&p.Location.Longitude, &p.Location.Latitude, &p.Description, &channels, &at,
		); err != nil {
			return nil, fmt.Errorf("error scanning dispatch: %w", err)
		}
		p.DisasterType = models.DisasterType(typ)
		p.Timestamp = fromMillis(at)
		if err := json.Unmarshal([]byte(channels), &p.Channels); err != nil {
			return nil, fmt.Errorf("error decoding channels: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
