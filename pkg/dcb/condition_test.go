package dcb_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"dcbstore/pkg/dcb"
)

var _ = Describe("AppendCondition", func() {
	It("defaults to the zero cursor and no idempotency clause", func() {
		cond := dcb.NewAppendCondition(dcb.NewQueryAll())
		Expect(cond.Cursor().IsZero()).To(BeTrue())
		Expect(cond.IdempotencyQuery()).To(BeNil())
	})

	It("treats a nil consistency query as matching nothing", func() {
		cond := dcb.NewAppendCondition(nil)
		Expect(cond.ConsistencyQuery().GetItems()).To(BeEmpty())
	})

	It("carries an idempotency clause separately from the consistency clause", func() {
		idem := dcb.NewQuery(dcb.NewTags("wallet_id", "w1"), "WalletOpened")
		consistency := dcb.NewQueryEmpty()
		cond := dcb.NewAppendConditionWithIdempotency(consistency, idem)

		Expect(cond.IdempotencyQuery()).To(Equal(idem))
		Expect(cond.ConsistencyQuery()).To(Equal(consistency))
	})

	It("WithCursor returns a copy pinned to the new cursor, leaving the original untouched", func() {
		cond := dcb.NewAppendCondition(dcb.NewQueryAll())
		pinned := cond.WithCursor(dcb.Cursor{TransactionID: "123", Position: 7})

		Expect(cond.Cursor().IsZero()).To(BeTrue())
		Expect(pinned.Cursor().Position).To(Equal(uint64(7)))
	})

	DescribeTable("convenience constructors build a single consistency item",
		func(cond dcb.AppendCondition, wantType string) {
			items := cond.ConsistencyQuery().GetItems()
			Expect(items).To(HaveLen(1))
			if wantType != "" {
				Expect(items[0].GetEventTypes()).To(ConsistOf(wantType))
			}
		},
		Entry("FailIfExists", dcb.FailIfExists("wallet_id", "w1"), ""),
		Entry("FailIfEventType", dcb.FailIfEventType("WalletOpened", "wallet_id", "w1"), "WalletOpened"),
	)

	It("FailIfEventTypes puts every named type (OR'd) into one item", func() {
		cond := dcb.FailIfEventTypes([]string{"WalletWithdrawn", "WalletDeposited"}, "wallet_id", "w1")
		items := cond.ConsistencyQuery().GetItems()
		Expect(items).To(HaveLen(1))
		Expect(items[0].GetEventTypes()).To(ConsistOf("WalletWithdrawn", "WalletDeposited"))
	})
})

var _ = Describe("Cursor", func() {
	It("ZeroCursor is the zero value", func() {
		Expect(dcb.ZeroCursor.IsZero()).To(BeTrue())
	})

	It("a cursor with either field set is not zero", func() {
		Expect(dcb.Cursor{Position: 1}.IsZero()).To(BeFalse())
		Expect(dcb.Cursor{TransactionID: "1"}.IsZero()).To(BeFalse())
	})
})
