package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type TurnRecord struct {
	ID        uuid.UUID `json:"id"`
	SessionID string    `json:"sessionId"`
	UserID    string    `json:"userId,omitempty"`
	Kind      string    `json:"kind"`
	Topic     string    `json:"topic,omitempty"`
	Flow      string    `json:"flow,omitempty"`
	Outcome   string    `json:"outcome"`
	LatencyMS int64     `json:"latencyMs"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// RecordTurn appends one finished turn to the ledger.
func (s *Store) RecordTurn(ctx context.Context, r TurnRecord) (uuid.UUID, error) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO turns (id, session_id, user_id, kind, topic, flow, outcome, latency_ms, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		r.ID, r.SessionID, r.UserID, r.Kind, r.Topic, r.Flow, r.Outcome, r.LatencyMS, r.Error, r.CreatedAt,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert turn: %w", err)
	}
	return r.ID, nil
}

type TopicStats struct {
	Topic  string `json:"topic"`
	Turns  int    `json:"turns"`
	Failed int    `json:"failed"`
}

type Stats struct {
	Since        time.Time    `json:"since"`
	Turns        int          `json:"turns"`
	Failed       int          `json:"failed"`
	AvgLatencyMS float64      `json:"avgLatencyMs"`
	ByTopic      []TopicStats `json:"byTopic"`
}

// Stats aggregates turns recorded at or after since.
func (s *Store) Stats(ctx context.Context, since time.Time) (*Stats, error) {
	st := &Stats{Since: since, ByTopic: []TopicStats{}}

	err := s.pool.QueryRow(ctx, `
		SELECT count(*),
		       count(*) FILTER (WHERE outcome = 'failed'),
		       coalesce(avg(latency_ms), 0)::float8
		FROM turns
		WHERE created_at >= $1`,
		since,
	).Scan(&st.Turns, &st.Failed, &st.AvgLatencyMS)
	if err != nil {
		return nil, fmt.Errorf("query totals: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT topic, count(*), count(*) FILTER (WHERE outcome = 'failed')
		FROM turns
		WHERE created_at >= $1 AND topic <> ''
		GROUP BY topic
		ORDER BY count(*) DESC, topic`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("query topics: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t TopicStats
		if err := rows.Scan(&t.Topic, &t.Turns, &t.Failed); err != nil {
			return nil, fmt.Errorf("scan topic: %w", err)
		}
		st.ByTopic = append(st.ByTopic, t)
	}
	return st, rows.Err()
}

// RecentFailures returns the newest failed turns, newest first.
func (s *Store) RecentFailures(ctx context.Context, limit int) ([]TurnRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, session_id, user_id, kind, topic, flow, outcome, latency_ms, error, created_at
		FROM turns
		WHERE outcome = 'failed'
		ORDER BY created_at DESC
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query failures: %w", err)
	}
	defer rows.Close()

	out := []TurnRecord{}
	for rows.Next() {
		var r TurnRecord
		if err := rows.Scan(&r.ID, &r.SessionID, &r.UserID, &r.Kind, &r.Topic, &r.Flow, &r.Outcome, &r.LatencyMS, &r.Error, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan failure: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
