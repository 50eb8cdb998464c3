package postgres_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"dcbstore/pkg/dcb"
	"dcbstore/pkg/dcb/postgres"
)

var _ = Describe("AppendIf", func() {
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

	It("appends unconditionally via Append and assigns a shared transaction_id", func() {
		events := []dcb.InputEvent{
			dcb.NewInputEvent("WalletOpened", dcb.NewTags("wallet_id", "w1"), dcb.ToJSON(map[string]any{"balance": 100})),
			dcb.NewInputEvent("CourseDefined", dcb.NewTags("course_id", "c1"), nil),
		}
		cursor, err := store.Append(ctx, events)
		Expect(err).NotTo(HaveOccurred())
		Expect(cursor.TransactionID).NotTo(BeEmpty())

		got, err := store.Query(ctx, dcb.NewQueryAll(), dcb.ZeroCursor)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(HaveLen(2))
		Expect(got[0].TransactionID).To(Equal(got[1].TransactionID))
	})

	It("checks the idempotency clause before the consistency clause", func() {
		open := dcb.NewInputEvent("WalletOpened", dcb.NewTags("wallet_id", "w1"), dcb.ToJSON(map[string]any{"balance": 50}))
		_, err := store.Append(ctx, []dcb.InputEvent{open})
		Expect(err).NotTo(HaveOccurred())

		idem := dcb.NewQuery(dcb.NewTags("wallet_id", "w1"), "WalletOpened")
		// The consistency clause also matches (same wallet_id tag, no
		// type restriction) - if it were checked first this would fail
		// CONCURRENT instead of returning IDEMPOTENT.
		consistency := dcb.NewQuery(dcb.NewTags("wallet_id", "w1"))
		cond := dcb.NewAppendConditionWithIdempotency(consistency, idem)

		result, _, err := store.AppendIf(ctx, []dcb.InputEvent{open}, cond)
		Expect(err).NotTo(HaveOccurred())
		Expect(result).To(Equal(dcb.ExecutionIdempotent))

		got, err := store.Query(ctx, dcb.NewQueryAll(), dcb.ZeroCursor)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(HaveLen(1), "the idempotent append must not have written a second event")
	})

	It("fails CONCURRENT when a matching event has committed after the condition's cursor", func() {
		open := dcb.NewInputEvent("WalletOpened", dcb.NewTags("wallet_id", "w1"), nil)
		cursorBefore, err := store.Append(ctx, []dcb.InputEvent{open})
		Expect(err).NotTo(HaveOccurred())

		withdraw := dcb.NewInputEvent("WalletWithdrawn", dcb.NewTags("wallet_id", "w1"), nil)
		_, err = store.Append(ctx, []dcb.InputEvent{withdraw})
		Expect(err).NotTo(HaveOccurred())

		staleCondition := dcb.NewAppendCondition(
			dcb.NewQuery(dcb.NewTags("wallet_id", "w1")),
		).WithCursor(cursorBefore)

		deposit := dcb.NewInputEvent("WalletDeposited", dcb.NewTags("wallet_id", "w1"), nil)
		_, _, err = store.AppendIf(ctx, []dcb.InputEvent{deposit}, staleCondition)
		Expect(err).To(HaveOccurred())
		Expect(dcb.IsDCBViolation(err)).To(BeTrue())

		violation, ok := dcb.GetDCBViolation(err)
		Expect(ok).To(BeTrue())
		Expect(violation.ErrorCode).To(Equal(dcb.DCBErrorConcurrent))
		Expect(violation.MatchingEventsCount).To(Equal(1))
	})

	It("succeeds when the consistency query has no matches after the pinned cursor", func() {
		open := dcb.NewInputEvent("WalletOpened", dcb.NewTags("wallet_id", "w2"), nil)
		cursor, err := store.Append(ctx, []dcb.InputEvent{open})
		Expect(err).NotTo(HaveOccurred())

		cond := dcb.NewAppendCondition(dcb.NewQuery(dcb.NewTags("wallet_id", "w2"))).WithCursor(cursor)
		deposit := dcb.NewInputEvent("WalletDeposited", dcb.NewTags("wallet_id", "w2"), nil)

		result, _, err := store.AppendIf(ctx, []dcb.InputEvent{deposit}, cond)
		Expect(err).NotTo(HaveOccurred())
		Expect(result).To(Equal(dcb.ExecutionCreated))
	})

	It("rejects a batch that fails event validation before opening a write transaction", func() {
		bad := dcb.NewInputEvent("", dcb.NewTags("wallet_id", "w1"), nil)
		_, err := store.Append(ctx, []dcb.InputEvent{bad})
		Expect(dcb.IsValidationError(err)).To(BeTrue())
	})
})
