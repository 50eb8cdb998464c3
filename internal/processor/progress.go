package processor

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dcbstore/pkg/dcb"
)

// ProgressStore is the Progress Store of spec §4.6: per-processor
// last-position, status, error count and leader identity, backed by
// the processor_progress table.
type ProgressStore struct {
	pool *pgxpool.Pool
}

func NewProgressStore(pool *pgxpool.Pool) *ProgressStore {
	return &ProgressStore{pool: pool}
}

// AutoRegister inserts a fresh ACTIVE row the first time a processor is
// seen, and is a no-op thereafter.
func (s *ProgressStore) AutoRegister(ctx context.Context, processorID, instanceID string) error {
	const stmt = `
		INSERT INTO processor_progress (processor_id, instance_id, status, last_position, error_count, updated_at)
		VALUES ($1, $2, 'ACTIVE', 0, 0, now())
		ON CONFLICT (processor_id) DO NOTHING
	`
	_, err := s.pool.Exec(ctx, stmt, processorID, instanceID)
	if err != nil {
		return progressErr("AutoRegister", err)
	}
	return nil
}

func (s *ProgressStore) GetLastPosition(ctx context.Context, processorID string) (uint64, error) {
	var pos uint64
	err := s.pool.QueryRow(ctx, `SELECT last_position FROM processor_progress WHERE processor_id = $1`, processorID).Scan(&pos)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, nil
		}
		return 0, progressErr("GetLastPosition", err)
	}
	return pos, nil
}

func (s *ProgressStore) UpdateProgress(ctx context.Context, processorID string, position uint64) error {
	const stmt = `
		UPDATE processor_progress
		SET last_position = $2, updated_at = now()
		WHERE processor_id = $1
	`
	_, err := s.pool.Exec(ctx, stmt, processorID, position)
	if err != nil {
		return progressErr("UpdateProgress", err)
	}
	return nil
}

// RecordError increments error_count and sets last_error; once
// error_count reaches maxErrors the processor transitions to FAILED and
// stops being dispatched to until an operator resets it.
func (s *ProgressStore) RecordError(ctx context.Context, processorID string, message string, maxErrors int) error {
	const stmt = `
		UPDATE processor_progress
		SET error_count = error_count + 1,
		    last_error = $2,
		    last_error_at = now(),
		    status = CASE WHEN error_count + 1 >= $3 THEN 'FAILED' ELSE status END,
		    updated_at = now()
		WHERE processor_id = $1
	`
	_, err := s.pool.Exec(ctx, stmt, processorID, message, maxErrors)
	if err != nil {
		return progressErr("RecordError", err)
	}
	return nil
}

func (s *ProgressStore) ResetErrorCount(ctx context.Context, processorID string) error {
	const stmt = `
		UPDATE processor_progress
		SET error_count = 0, last_error = NULL, last_error_at = NULL, status = 'ACTIVE', updated_at = now()
		WHERE processor_id = $1
	`
	_, err := s.pool.Exec(ctx, stmt, processorID)
	if err != nil {
		return progressErr("ResetErrorCount", err)
	}
	return nil
}

func (s *ProgressStore) GetStatus(ctx context.Context, processorID string) (Status, error) {
	var status string
	err := s.pool.QueryRow(ctx, `SELECT status FROM processor_progress WHERE processor_id = $1`, processorID).Scan(&status)
	if err != nil {
		if err == pgx.ErrNoRows {
			return StatusActive, nil
		}
		return "", progressErr("GetStatus", err)
	}
	return Status(status), nil
}

func (s *ProgressStore) SetStatus(ctx context.Context, processorID string, status Status) error {
	const stmt = `UPDATE processor_progress SET status = $2, updated_at = now() WHERE processor_id = $1`
	_, err := s.pool.Exec(ctx, stmt, processorID, string(status))
	if err != nil {
		return progressErr("SetStatus", err)
	}
	return nil
}

func progressErr(op string, err error) error {
	return &dcb.ResourceError{
		EventStoreError: dcb.EventStoreError{Op: op, Err: fmt.Errorf("progress store: %w", err)},
		Resource:        "database",
	}
}
