package writebuffer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rackmesh/telemetry-core/internal/canonical"
	"github.com/rackmesh/telemetry-core/internal/infrastructure/database"
)

// sqlTimeFormat normalises timestamps for storage (UTC,
// "YYYY-MM-DD HH:MM:SS").
const sqlTimeFormat = "2006-01-02 15:04:05"

// insertChunkSize bounds the rows per multi-row INSERT so the statement
// stays under SQLite's bound-parameter limit (10 columns per row, 999
// parameters by default).
const insertChunkSize = 90

const insertColumns = "device_id, device_kind, module_number, module_port, sensor_id, sensor_kind, timestamp, payload, meta, created_at"

// SensorStore persists canonical records to the sensor_data table.
type SensorStore struct {
	db *database.DB
}

// NewSensorStore creates a store over an open database.
func NewSensorStore(db *database.DB) *SensorStore {
	return &SensorStore{db: db}
}

// SaveBatch inserts all records in chunked multi-row statements inside
// one transaction, so a batch is stored either completely or not at
// all.
func (s *SensorStore) SaveBatch(ctx context.Context, batchID string, records []canonical.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("batch %s: %w", batchID, err)
	}
	defer tx.Rollback() //nolint:errcheck // No-op if committed

	for start := 0; start < len(records); start += insertChunkSize {
		end := start + insertChunkSize
		if end > len(records) {
			end = len(records)
		}
		chunk := records[start:end]

		query, args, err := buildInsert(chunk)
		if err != nil {
			return fmt.Errorf("batch %s: %w", batchID, err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("batch %s: inserting rows: %w", batchID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("batch %s: committing: %w", batchID, err)
	}
	return nil
}

// SaveHistory inserts a single record. This is the write buffer's
// per-row fallback path.
func (s *SensorStore) SaveHistory(ctx context.Context, rec canonical.Record) error {
	query, args, err := buildInsert([]canonical.Record{rec})
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting row for %s: %w", rec.String(), err)
	}
	return nil
}

// buildInsert renders a multi-row INSERT for the given records.
func buildInsert(records []canonical.Record) (string, []any, error) {
	var sb strings.Builder
	sb.WriteString("INSERT INTO sensor_data (")
	sb.WriteString(insertColumns)
	sb.WriteString(") VALUES ")

	now := time.Now().UTC().Format(sqlTimeFormat)
	args := make([]any, 0, len(records)*10)
	for i, rec := range records {
		payload, err := json.Marshal(rec.Payload)
		if err != nil {
			return "", nil, fmt.Errorf("marshalling payload for %s: %w", rec.String(), err)
		}
		meta, err := json.Marshal(rec.Meta)
		if err != nil {
			return "", nil, fmt.Errorf("marshalling meta for %s: %w", rec.String(), err)
		}

		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")

		var moduleNumber any
		if rec.ModuleNumber != nil {
			moduleNumber = *rec.ModuleNumber
		}
		var sensorID any
		if rec.ModuleID != "" {
			sensorID = rec.ModuleID
		}

		args = append(args,
			rec.DeviceID,
			string(rec.DeviceKind),
			moduleNumber,
			nil, // module_port: reserved for per-position expansion
			sensorID,
			string(rec.MessageKind),
			rec.Timestamp.UTC().Format(sqlTimeFormat),
			string(payload),
			string(meta),
			now,
		)
	}

	return sb.String(), args, nil
}

// HistoryRow is one stored record as returned by DeviceHistory.
type HistoryRow struct {
	ID           int64           `json:"id"`
	DeviceID     string          `json:"deviceId"`
	DeviceKind   string          `json:"deviceKind"`
	ModuleNumber *int            `json:"moduleNumber,omitempty"`
	SensorID     *string         `json:"sensorId,omitempty"`
	SensorKind   string          `json:"sensorKind"`
	Timestamp    string          `json:"timestamp"`
	Payload      json.RawMessage `json:"payload"`
	Meta         json.RawMessage `json:"meta"`
	CreatedAt    string          `json:"createdAt"`
}

// DeviceHistory returns a device's stored records, newest first,
// bounded by limit.
func (s *SensorStore) DeviceHistory(ctx context.Context, deviceID string, limit int) ([]HistoryRow, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, device_id, device_kind, module_number, sensor_id, sensor_kind, timestamp, payload, meta, created_at
		 FROM sensor_data WHERE device_id = ? ORDER BY timestamp DESC, id DESC LIMIT ?`,
		deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying history for %s: %w", deviceID, err)
	}
	defer rows.Close() //nolint:errcheck // Read-only cursor

	var out []HistoryRow
	for rows.Next() {
		var (
			r       HistoryRow
			payload string
			meta    string
		)
		if err := rows.Scan(&r.ID, &r.DeviceID, &r.DeviceKind, &r.ModuleNumber, &r.SensorID,
			&r.SensorKind, &r.Timestamp, &payload, &meta, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		r.Payload = json.RawMessage(payload)
		r.Meta = json.RawMessage(meta)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history rows: %w", err)
	}
	return out, nil
}

// CountForDevice returns the number of stored rows for a device.
func (s *SensorStore) CountForDevice(ctx context.Context, deviceID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sensor_data WHERE device_id = ?", deviceID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting rows for %s: %w", deviceID, err)
	}
	return count, nil
}
