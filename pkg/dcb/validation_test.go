package dcb_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"dcbstore/pkg/dcb"
)

var _ = Describe("ValidateEvent", func() {
	It("accepts a well-formed event", func() {
		e := dcb.NewInputEvent("WalletOpened", dcb.NewTags("wallet_id", "w1"), []byte(`{"balance":100}`))
		Expect(dcb.ValidateEvent(e, 0)).To(Succeed())
	})

	It("rejects an event with no type", func() {
		e := dcb.NewInputEvent("", dcb.NewTags("wallet_id", "w1"), nil)
		err := dcb.ValidateEvent(e, 0)
		Expect(dcb.IsValidationError(err)).To(BeTrue())
	})

	It("rejects an event with no tags", func() {
		e := dcb.NewInputEvent("WalletOpened", nil, nil)
		Expect(dcb.IsValidationError(dcb.ValidateEvent(e, 0))).To(BeTrue())
	})

	It("rejects duplicate tag keys", func() {
		tags := append(dcb.NewTags("wallet_id", "w1"), dcb.NewTag("wallet_id", "w2"))
		e := dcb.NewInputEvent("WalletOpened", tags, nil)
		Expect(dcb.IsValidationError(dcb.ValidateEvent(e, 0))).To(BeTrue())
	})

	It("rejects invalid JSON data", func() {
		e := dcb.NewInputEvent("WalletOpened", dcb.NewTags("wallet_id", "w1"), []byte("not json"))
		Expect(dcb.IsValidationError(dcb.ValidateEvent(e, 0))).To(BeTrue())
	})

	It("accepts empty data", func() {
		e := dcb.NewInputEvent("WalletOpened", dcb.NewTags("wallet_id", "w1"), nil)
		Expect(dcb.ValidateEvent(e, 0)).To(Succeed())
	})
})

var _ = Describe("ValidateBatchSize / ValidateEvents", func() {
	It("rejects a batch larger than the configured maximum", func() {
		events := []dcb.InputEvent{
			dcb.NewInputEvent("A", dcb.NewTags("k", "v"), nil),
			dcb.NewInputEvent("B", dcb.NewTags("k", "v"), nil),
		}
		err := dcb.ValidateBatchSize(events, 1, "Append")
		Expect(dcb.IsValidationError(err)).To(BeTrue())
	})

	It("validates every event in order and stops at the first failure", func() {
		events := []dcb.InputEvent{
			dcb.NewInputEvent("A", dcb.NewTags("k", "v"), nil),
			dcb.NewInputEvent("", dcb.NewTags("k", "v"), nil),
		}
		err := dcb.ValidateEvents(events, 10)
		Expect(dcb.IsValidationError(err)).To(BeTrue())

		ve, ok := dcb.GetValidationError(err)
		Expect(ok).To(BeTrue())
		Expect(ve.Value).To(ContainSubstring("event[1]"))
	})
})

var _ = Describe("ValidateQueryTags", func() {
	It("accepts an empty query", func() {
		Expect(dcb.ValidateQueryTags(dcb.NewQueryEmpty())).To(Succeed())
	})

	It("rejects a query item with an empty event type", func() {
		item := dcb.NewQueryItem([]string{""}, nil)
		q := dcb.NewQueryFromItems(item)
		Expect(dcb.IsValidationError(dcb.ValidateQueryTags(q))).To(BeTrue())
	})
})
