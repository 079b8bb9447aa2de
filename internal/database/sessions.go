package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/stocksync/pkg/models"
)

// ErrSessionNotFound is returned when a session id has no row.
var ErrSessionNotFound = errors.New("session not found")

// CreateSession inserts a new running session row. Checkpoints update this
// row in place so an interrupted run leaves its last counters behind.
func (mc *MySQLClient) CreateSession(ctx context.Context, s *models.SyncSession) error {
	_, err := mc.db.ExecContext(ctx, `INSERT INTO sync_sessions
		(session_id, series_type, symbols_requested, symbols_processed,
		 symbols_successful, symbols_failed, total_api_calls,
		 total_records_fetched, status, start_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.SessionID, s.SeriesType, strings.Join(s.SymbolsRequested, ","),
		s.SymbolsProcessed, s.SymbolsSuccessful, s.SymbolsFailed,
		s.TotalAPICalls, s.TotalRecordsFetched, s.Status, s.StartTime)
	if err != nil {
		return fmt.Errorf("failed to create session %s: %w", s.SessionID, err)
	}
	return nil
}

// CheckpointSession persists the session's current counters and status.
// Terminal sessions also get their end time written.
func (mc *MySQLClient) CheckpointSession(ctx context.Context, s *models.SyncSession) error {
	var endTime interface{}
	if !s.EndTime.IsZero() {
		endTime = s.EndTime
	}

	_, err := mc.db.ExecContext(ctx, `UPDATE sync_sessions
		SET symbols_processed = ?, symbols_successful = ?, symbols_failed = ?,
			total_api_calls = ?, total_records_fetched = ?, status = ?, end_time = ?
		WHERE session_id = ?`,
		s.SymbolsProcessed, s.SymbolsSuccessful, s.SymbolsFailed,
		s.TotalAPICalls, s.TotalRecordsFetched, s.Status, endTime, s.SessionID)
	if err != nil {
		return fmt.Errorf("failed to checkpoint session %s: %w", s.SessionID, err)
	}
	return nil
}

// GetSession loads a session by id.
func (mc *MySQLClient) GetSession(ctx context.Context, sessionID string) (*models.SyncSession, error) {
	var (
		s         models.SyncSession
		requested string
		endTime   sql.NullTime
	)
	err := mc.db.QueryRowContext(ctx, `SELECT session_id, series_type,
			symbols_requested, symbols_processed, symbols_successful,
			symbols_failed, total_api_calls, total_records_fetched,
			status, start_time, end_time
		FROM sync_sessions WHERE session_id = ?`, sessionID).
		Scan(&s.SessionID, &s.SeriesType, &requested, &s.SymbolsProcessed,
			&s.SymbolsSuccessful, &s.SymbolsFailed, &s.TotalAPICalls,
			&s.TotalRecordsFetched, &s.Status, &s.StartTime, &endTime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session %s: %w", sessionID, err)
	}

	if requested != "" {
		s.SymbolsRequested = strings.Split(requested, ",")
	}
	if endTime.Valid {
		s.EndTime = endTime.Time
	}
	return &s, nil
}
