package database

import (
	"context"
	"encoding/json"
	"time"

	"signal-trading-engine/internal/logging"
	"signal-trading-engine/internal/weights"
)

// WeightRepository mirrors the in-memory amendment history to
// PostgreSQL. Persistence is fire-and-forget: the in-memory history
// remains the source of truth and a database outage never blocks an
// amendment.
type WeightRepository struct {
	db *DB
}

// NewWeightRepository creates a weight amendment repository
func NewWeightRepository(db *DB) *WeightRepository {
	return &WeightRepository{db: db}
}

// RecordAmendment persists an applied amendment asynchronously
func (r *WeightRepository) RecordAmendment(a weights.Amendment) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		before, err := json.Marshal(a.Before)
		if err != nil {
			logging.Error("marshal amendment before-vector", "amendment_id", a.ID, "error", err)
			return
		}
		after, err := json.Marshal(a.After)
		if err != nil {
			logging.Error("marshal amendment after-vector", "amendment_id", a.ID, "error", err)
			return
		}

		query := `
			INSERT INTO weight_amendments (amendment_id, authority, reason, weights_before, weights_after, amended_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (amendment_id) DO NOTHING
		`
		if _, err := r.db.Pool.Exec(ctx, query,
			a.ID, string(a.Authority), a.Reason, before, after, a.Timestamp,
		); err != nil {
			logging.Error("persist weight amendment", "amendment_id", a.ID, "error", err)
		}
	}()
}

// GetAmendments reads the persisted history, most recent first
func (r *WeightRepository) GetAmendments(ctx context.Context, limit int) ([]weights.Amendment, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT amendment_id, authority, reason, weights_before, weights_after, amended_at
		FROM weight_amendments
		ORDER BY amended_at DESC
		LIMIT $1
	`
	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []weights.Amendment
	for rows.Next() {
		var a weights.Amendment
		var authority string
		var before, after []byte
		if err := rows.Scan(&a.ID, &authority, &a.Reason, &before, &after, &a.Timestamp); err != nil {
			return nil, err
		}
		a.Authority = weights.Authority(authority)
		if err := json.Unmarshal(before, &a.Before); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(after, &a.After); err != nil {
			return nil, err
		}
		history = append(history, a)
	}
	return history, rows.Err()
}
