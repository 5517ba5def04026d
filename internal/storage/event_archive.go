package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/repolens/repolens/internal/model"
)

// EventArchive defines the interface for durable diagnostic event storage
type EventArchive interface {
	// Archive persists one recorded event
	Archive(ctx context.Context, event model.Event) error

	// List retrieves archived events with filters and pagination, newest first
	List(ctx context.Context, filters map[string]interface{}, offset, limit int) ([]*model.Event, error)

	// Count returns the total number of events matching the filters
	Count(ctx context.Context, filters map[string]interface{}) (int, error)

	// DeleteBefore deletes events recorded before the specified time
	DeleteBefore(ctx context.Context, before time.Time) error

	// Close releases the underlying storage
	Close() error
}

// SQLiteEventArchive implements EventArchive using SQLite
type SQLiteEventArchive struct {
	logger *zap.Logger
	db     *sql.DB
}

// NewSQLiteEventArchive opens (or creates) a SQLite-backed event archive
func NewSQLiteEventArchive(logger *zap.Logger, dbPath string) (*SQLiteEventArchive, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	archive := &SQLiteEventArchive{
		logger: logger,
		db:     db,
	}

	if err := archive.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return archive, nil
}

// initialize creates the necessary tables if they don't exist
func (s *SQLiteEventArchive) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS diagnostic_events (
			id TEXT PRIMARY KEY,
			stream TEXT NOT NULL,
			code TEXT NOT NULL,
			severity TEXT NOT NULL,
			message TEXT,
			context TEXT,
			recorded_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_diagnostic_events_stream ON diagnostic_events(stream);
		CREATE INDEX IF NOT EXISTS idx_diagnostic_events_code ON diagnostic_events(code);
		CREATE INDEX IF NOT EXISTS idx_diagnostic_events_severity ON diagnostic_events(severity);
		CREATE INDEX IF NOT EXISTS idx_diagnostic_events_recorded_at ON diagnostic_events(recorded_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	return nil
}

// Archive implements EventArchive.Archive. A context payload that cannot be
// serialized is dropped; the event itself is still archived.
func (s *SQLiteEventArchive) Archive(ctx context.Context, event model.Event) error {
	var contextStr string
	if len(event.Context) > 0 {
		data, err := json.Marshal(event.Context)
		if err == nil {
			contextStr = string(data)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO diagnostic_events (
			id, stream, code, severity, message, context, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.Stream,
		event.Code,
		string(event.Severity),
		event.Message,
		sql.NullString{String: contextStr, Valid: contextStr != ""},
		event.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to archive event: %w", err)
	}
	return nil
}

// List implements EventArchive.List
func (s *SQLiteEventArchive) List(ctx context.Context, filters map[string]interface{}, offset, limit int) ([]*model.Event, error) {
	query := "SELECT id, stream, code, severity, message, context, recorded_at FROM diagnostic_events"
	args := make([]interface{}, 0)

	query, args = applyFilters(query, args, filters)
	query += " ORDER BY recorded_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []*model.Event
	for rows.Next() {
		event := &model.Event{}
		var severity string
		var message, contextStr sql.NullString

		err := rows.Scan(
			&event.ID,
			&event.Stream,
			&event.Code,
			&severity,
			&message,
			&contextStr,
			&event.RecordedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		event.Severity = model.Severity(severity)
		if message.Valid {
			event.Message = message.String
		}
		if contextStr.Valid && contextStr.String != "" {
			if err := json.Unmarshal([]byte(contextStr.String), &event.Context); err != nil {
				s.logger.Warn("Failed to decode archived event context",
					zap.String("event_id", event.ID),
					zap.Error(err))
			}
		}

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return events, nil
}

// Count implements EventArchive.Count
func (s *SQLiteEventArchive) Count(ctx context.Context, filters map[string]interface{}) (int, error) {
	query := "SELECT COUNT(*) FROM diagnostic_events"
	args := make([]interface{}, 0)
	query, args = applyFilters(query, args, filters)

	var count int
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}

// DeleteBefore implements EventArchive.DeleteBefore
func (s *SQLiteEventArchive) DeleteBefore(ctx context.Context, before time.Time) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM diagnostic_events WHERE recorded_at < ?", before)
	if err != nil {
		return fmt.Errorf("failed to delete events: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	s.logger.Info("Deleted old archived events",
		zap.Time("before", before),
		zap.Int64("deleted", affected))

	return nil
}

// Close closes the database connection
func (s *SQLiteEventArchive) Close() error {
	return s.db.Close()
}

func applyFilters(query string, args []interface{}, filters map[string]interface{}) (string, []interface{}) {
	if len(filters) == 0 {
		return query, args
	}

	query += " WHERE"
	first := true
	for key, value := range filters {
		if !first {
			query += " AND"
		}
		query += fmt.Sprintf(" %s = ?", key)
		args = append(args, value)
		first = false
	}
	return query, args
}
