package postgres_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"dcbstore/pkg/dcb"
	"dcbstore/pkg/dcb/postgres"
)

var _ = Describe("Project", func() {
	var (
		ctx   context.Context
		store dcb.EventStore
	)

	BeforeEach(func() {
		ctx = context.Background()
		truncateEvents(ctx)

		var err error
		store, err = postgres.Open(ctx, pool)
		Expect(err).NotTo(HaveOccurred())
	})

	It("folds several projectors over one wallet's events in a single pass", func() {
		_, err := store.Append(ctx, []dcb.InputEvent{
			dcb.NewInputEvent("WalletOpened", dcb.NewTags("wallet_id", "w1"), dcb.ToJSON(map[string]any{"balance": 100})),
		})
		Expect(err).NotTo(HaveOccurred())
		_, err = store.Append(ctx, []dcb.InputEvent{
			dcb.NewInputEvent("WalletDeposited", dcb.NewTags("wallet_id", "w1"), dcb.ToJSON(map[string]any{"amount": 50})),
		})
		Expect(err).NotTo(HaveOccurred())
		_, err = store.Append(ctx, []dcb.InputEvent{
			dcb.NewInputEvent("WalletWithdrawn", dcb.NewTags("wallet_id", "w1"), dcb.ToJSON(map[string]any{"amount": 20})),
		})
		Expect(err).NotTo(HaveOccurred())

		balance := dcb.ProjectState("balance", "WalletOpened", "wallet_id", "w1", 0, func(state any, event dcb.Event) any {
			return state.(int) + 1
		})

		deposits := dcb.ProjectCounter("deposits", "WalletDeposited", "wallet_id", "w1")
		withdrawals := dcb.ProjectCounter("withdrawals", "WalletWithdrawn", "wallet_id", "w1")

		states, condition, err := store.Project(ctx, []dcb.StateProjector{balance, deposits, withdrawals}, dcb.ZeroCursor)
		Expect(err).NotTo(HaveOccurred())
		Expect(states["balance"]).To(Equal(1))
		Expect(states["deposits"]).To(Equal(1))
		Expect(states["withdrawals"]).To(Equal(1))
		Expect(condition.Cursor().IsZero()).To(BeFalse())
	})

	It("returns a zero-state, zero-cursor result for no projectors", func() {
		states, condition, err := store.Project(ctx, nil, dcb.ZeroCursor)
		Expect(err).NotTo(HaveOccurred())
		Expect(states).To(BeEmpty())
		Expect(condition.Cursor().IsZero()).To(BeTrue())
	})

	It("ProjectStream publishes one snapshot per matching event", func() {
		_, err := store.Append(ctx, []dcb.InputEvent{
			dcb.NewInputEvent("WalletDeposited", dcb.NewTags("wallet_id", "w1"), nil),
			dcb.NewInputEvent("WalletDeposited", dcb.NewTags("wallet_id", "w1"), nil),
		})
		Expect(err).NotTo(HaveOccurred())

		deposits := dcb.ProjectCounter("deposits", "WalletDeposited", "wallet_id", "w1")
		stateCh, condCh, err := store.ProjectStream(ctx, []dcb.StateProjector{deposits}, dcb.ZeroCursor)
		Expect(err).NotTo(HaveOccurred())

		var snapshots []map[string]any
		for snapshot := range stateCh {
			snapshots = append(snapshots, snapshot)
		}
		for range condCh {
		}
		Expect(snapshots).To(HaveLen(2))
		Expect(snapshots[1]["deposits"]).To(Equal(2))
	})
})
