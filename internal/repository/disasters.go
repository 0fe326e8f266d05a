package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mr1hm/disaster-sentinel/internal/geo"
	"github.com/mr1hm/disaster-sentinel/internal/models"
)

const disasterColumns = `id, type, longitude, latitude, severity, description, affected_area, status,
	start_time, end_time, readings, alerts_sent, source_ref, created_at, updated_at`

func (s *SQLiteDB) Add(ctx context.Context, d *models.DisasterEvent) error {
	readings := d.Readings
	if readings == nil {
		readings = []models.Reading{}
	}
	raw, err := json.Marshal(readings)
	if err != nil {
		return fmt.Errorf("error encoding readings: %w", err)
	}

	var ref sql.NullString
	if d.SourceRef != "" {
		ref = sql.NullString{String: d.SourceRef, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO disasters (`+disasterColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, string(d.Type), d.Location.Longitude, d.Location.Latitude, d.Severity, d.Description,
		d.AffectedArea, string(d.Status), toMillis(d.StartTime), nullMillis(d.EndTime), string(raw),
		d.AlertsSent, ref, toMillis(d.CreatedAt), toMillis(d.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("error inserting disaster %s: %w", d.ID, err)
	}
	return nil
}

func (s *SQLiteDB) GetByID(ctx context.Context, id string) (*models.DisasterEvent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+disasterColumns+` FROM disasters WHERE id = ?`, id)
	d, err := scanDisaster(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading disaster %s: %w", id, err)
	}
	return d, nil
}

func (s *SQLiteDB) ExistsBySourceRef(ctx context.Context, ref string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM disasters WHERE source_ref = ?`, ref).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("error checking source ref %s: %w", ref, err)
	}
	return n > 0, nil
}

func (s *SQLiteDB) ListDisasters(ctx context.Context, opts DisasterFilter) ([]models.DisasterEvent, error) {
	var (
		where []string
		args  []any
	)
	if opts.Type != nil {
		where = append(where, "type = ?")
		args = append(args, string(*opts.Type))
	}
	if opts.MinSeverity != nil {
		where = append(where, "severity >= ?")
		args = append(args, *opts.MinSeverity)
	}
	if opts.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*opts.Status))
	}
	if opts.Since != nil {
		where = append(where, "start_time >= ?")
		args = append(args, toMillis(*opts.Since))
	}
	if opts.Until != nil {
		where = append(where, "start_time <= ?")
		args = append(args, toMillis(*opts.Until))
	}
	if opts.AlertsSent != nil {
		where = append(where, "alerts_sent = ?")
		args = append(args, *opts.AlertsSent)
	}

	query := `SELECT ` + disasterColumns + ` FROM disasters`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id"
	if opts.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, opts.Limit, opts.Offset)
	}

	return s.queryDisasters(ctx, query, args...)
}

// Nearby prefilters on a bounding box in SQL and keeps the rows whose
// great-circle distance is within the requested radius.
func (s *SQLiteDB) Nearby(ctx context.Context, q NearbyQuery) ([]models.DisasterEvent, error) {
	box := geo.BoundingBox(q.Latitude, q.Longitude, q.Distance, q.Unit)

	candidates, err := s.queryDisasters(ctx, `
		SELECT `+disasterColumns+` FROM disasters
		WHERE latitude BETWEEN ? AND ? AND longitude BETWEEN ? AND ?
		ORDER BY created_at DESC, id`,
		box.MinLat, box.MaxLat, box.MinLon, box.MaxLon,
	)
	if err != nil {
		return nil, err
	}

	out := candidates[:0]
	for _, d := range candidates {
		if geo.Within(q.Latitude, q.Longitude, d.Location.Latitude, d.Location.Longitude, q.Distance, q.Unit) {
			out = append(out, d)
		}
	}
	return out, nil
}

// Update writes the mutable fields. Type, location, readings and alerts_sent
// are left untouched.
func (s *SQLiteDB) Update(ctx context.Context, d *models.DisasterEvent) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE disasters
		SET severity = ?, description = ?, affected_area = ?, status = ?, end_time = ?, updated_at = ?
		WHERE id = ?`,
		d.Severity, d.Description, d.AffectedArea, string(d.Status), nullMillis(d.EndTime), toMillis(d.UpdatedAt), d.ID,
	)
	if err != nil {
		return false, fmt.Errorf("error updating disaster %s: %w", d.ID, err)
	}
	return affected(res)
}

// AppendReading appends in SQL so concurrent appends never overwrite each other.
func (s *SQLiteDB) AppendReading(ctx context.Context, id string, r models.Reading) (bool, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return false, fmt.Errorf("error encoding reading: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE disasters
		SET readings = json_insert(readings, '$[#]', json(?)), updated_at = ?
		WHERE id = ?`,
		string(raw), toMillis(r.Timestamp), id,
	)
	if err != nil {
		return false, fmt.Errorf("error appending reading to %s: %w", id, err)
	}
	return affected(res)
}

func (s *SQLiteDB) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM disasters WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("error deleting disaster %s: %w", id, err)
	}
	return affected(res)
}

func (s *SQLiteDB) MarkAlertsSent(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE disasters SET alerts_sent = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("error marking alerts sent for %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteDB) ClaimAlertsSent(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE disasters SET alerts_sent = 1 WHERE id = ? AND alerts_sent = 0`, id)
	if err != nil {
		return false, fmt.Errorf("error claiming alerts for %s: %w", id, err)
	}
	return affected(res)
}

func (s *SQLiteDB) queryDisasters(ctx context.Context, query string, args ...any) ([]models.DisasterEvent, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying disasters: %w", err)
	}
	defer rows.Close()

	disasters := make([]models.DisasterEvent, 0)
	for rows.Next() {
		d, err := scanDisaster(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning disaster: %w", err)
		}
		disasters = append(disasters, *d)
	}
	return disasters, rows.Err()
}

func scanDisaster(row scanner) (*models.DisasterEvent, error) {
	var (
		d                               models.DisasterEvent
		typ, status, readings           string
		startTime, createdAt, updatedAt int64
		endTime                         sql.NullInt64
		ref                             sql.NullString
	)
	err := row.Scan(
		&d.ID, &typ, &d.Location.Longitude, &d.Location.Latitude, &d.Severity, &d.Description,
		&d.AffectedArea, &status, &startTime, &endTime, &readings, &d.AlertsSent, &ref,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.Type = models.DisasterType(typ)
	d.Status = models.Status(status)
	d.StartTime = fromMillis(startTime)
	d.EndTime = timePtr(endTime)
	d.SourceRef = ref.String
	d.CreatedAt = fromMillis(createdAt)
	d.UpdatedAt = fromMillis(updatedAt)

	if err := json.Unmarshal([]byte(readings), &d.Readings); err != nil {
		return nil, fmt.Errorf("error decoding readings: %w", err)
	}
	if d.Readings == nil {
		d.Readings = []models.Reading{}
	}
	return &d, nil
}

