package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dcbstore/internal/sink"
	"dcbstore/pkg/dcb"
)

// buildViewUpdater wires the wallet_balances/course_rosters read model
// the demo serves alongside the event log - the materialized-view half
// of spec.md §4.9's "external publisher or view updater" downstream
// handler.
func buildViewUpdater(pool *pgxpool.Pool) *sink.ViewUpdater {
	return sink.NewViewUpdater(pool).
		On("WalletOpened", applyWalletOpened).
		On("WalletWithdrawn", applyWalletWithdrawn).
		On("WalletDeposited", applyWalletDeposited).
		On("StudentSubscribed", applyStudentSubscribed)
}

func applyWalletOpened(ctx context.Context, tx pgx.Tx, event dcb.Event) error {
	var data WalletOpened
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("unmarshal WalletOpened: %w", err)
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO wallet_balances (wallet_id, owner, balance, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (wallet_id) DO NOTHING
	`, data.WalletID, data.Owner, data.Balance, data.OpenedAt)
	return err
}

func applyWalletWithdrawn(ctx context.Context, tx pgx.Tx, event dcb.Event) error {
	var data WalletWithdrawn
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("unmarshal WalletWithdrawn: %w", err)
	}
	_, err := tx.Exec(ctx, `
		UPDATE wallet_balances SET balance = $2, updated_at = $3 WHERE wallet_id = $1
	`, data.WalletID, data.NewBalance, data.WithdrawnAt)
	return err
}

func applyWalletDeposited(ctx context.Context, tx pgx.Tx, event dcb.Event) error {
	var data WalletDeposited
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("unmarshal WalletDeposited: %w", err)
	}
	_, err := tx.Exec(ctx, `
		UPDATE wallet_balances SET balance = $2, updated_at = $3 WHERE wallet_id = $1
	`, data.WalletID, data.NewBalance, data.DepositedAt)
	return err
}

func applyStudentSubscribed(ctx context.Context, tx pgx.Tx, event dcb.Event) error {
	var data StudentSubscribed
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("unmarshal StudentSubscribed: %w", err)
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO course_rosters (course_id, student_id, enrolled_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (course_id, student_id) DO NOTHING
	`, data.CourseID, data.StudentID, data.SubscribedAt)
	return err
}
