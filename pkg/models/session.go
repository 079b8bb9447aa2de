package models

import "time"

// Session status values. Running is the only non-terminal state.
const (
	SessionStatusRunning     = "running"
	SessionStatusCompleted   = "completed"
	SessionStatusInterrupted = "interrupted"
	SessionStatusFailed      = "failed"
)

// SyncSession records one orchestrator run over a set of symbols. Counters
// accumulate while the session is running and freeze once the status goes
// terminal.
type SyncSession struct {
	SessionID           string    `json:"session_id"`
	SeriesType          string    `json:"series_type"`
	SymbolsRequested    []string  `json:"symbols_requested"`
	SymbolsProcessed    int       `json:"symbols_processed"`
	SymbolsSuccessful   int       `json:"symbols_successful"`
	SymbolsFailed       int       `json:"symbols_failed"`
	TotalAPICalls       int64     `json:"total_api_calls"`
	TotalRecordsFetched int64     `json:"total_records_fetched"`
	Status              string    `json:"status"`
	StartTime           time.Time `json:"start_time"`
	EndTime             time.Time `json:"end_time,omitempty"`
}

// Terminal reports whether the session can no longer be mutated.
func (s *SyncSession) Terminal() bool {
	return s.Status != SessionStatusRunning
}

// Elapsed returns the session duration, using now while still running.
func (s *SyncSession) Elapsed(now time.Time) time.Duration {
	end := s.EndTime
	if end.IsZero() {
		end = now
	}
	return end.Sub(s.StartTime)
}
