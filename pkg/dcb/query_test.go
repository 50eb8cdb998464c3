package dcb_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"dcbstore/pkg/dcb"
)

var _ = Describe("Query construction", func() {
	It("builds a single-item query from tags and types", func() {
		q := dcb.NewQuery(dcb.NewTags("wallet_id", "w1"), "WalletOpened", "WalletWithdrawn")
		Expect(q.GetItems()).To(HaveLen(1))
		item := q.GetItems()[0]
		Expect(item.GetEventTypes()).To(ConsistOf("WalletOpened", "WalletWithdrawn"))
		Expect(item.GetTags()).To(HaveLen(1))
		Expect(item.GetTags()[0].GetKey()).To(Equal("wallet_id"))
	})

	It("OR's items built via QueryBuilder", func() {
		q := dcb.NewQueryBuilder().
			WithTagAndType("wallet_id", "w1", "WalletOpened").
			AddItem().
			WithTagAndType("course_id", "c1", "CourseDefined").
			Build()
		Expect(q.GetItems()).To(HaveLen(2))
	})

	It("NewQueryEmpty has no items", func() {
		Expect(dcb.NewQueryEmpty().GetItems()).To(BeEmpty())
	})

	It("NewQueryAll has one item with no type/tag restriction", func() {
		items := dcb.NewQueryAll().GetItems()
		Expect(items).To(HaveLen(1))
		Expect(items[0].GetEventTypes()).To(BeEmpty())
		Expect(items[0].GetTags()).To(BeEmpty())
	})
})

var _ = Describe("TagsToArray / ParseTagsArray", func() {
	It("round-trips a tag set through the key:value storage form", func() {
		tags := dcb.NewTags("wallet_id", "w1", "owner", "alice")
		arr := dcb.TagsToArray(tags)
		Expect(arr).To(ConsistOf("wallet_id:w1", "owner:alice"))

		parsed := dcb.ParseTagsArray(arr)
		Expect(parsed).To(HaveLen(2))
	})

	It("sorts the array form so equivalent tag sets compare equal", func() {
		a := dcb.TagsToArray(dcb.NewTags("b", "2", "a", "1"))
		b := dcb.TagsToArray(dcb.NewTags("a", "1", "b", "2"))
		Expect(a).To(Equal(b))
	})

	It("skips malformed entries when parsing back", func() {
		parsed := dcb.ParseTagsArray([]string{"novalue", "", "k:v"})
		Expect(parsed).To(HaveLen(1))
		Expect(parsed[0].GetKey()).To(Equal("k"))
	})
})

var _ = Describe("CombineProjectorQueries", func() {
	It("unions event types across projectors sharing the same tag set", func() {
		p1 := dcb.ProjectCounter("balance", "WalletDeposited", "wallet_id", "w1")
		p2 := dcb.ProjectCounter("withdrawals", "WalletWithdrawn", "wallet_id", "w1")

		combined := dcb.CombineProjectorQueries([]dcb.StateProjector{p1, p2})
		Expect(combined.GetItems()).To(HaveLen(1))
		Expect(combined.GetItems()[0].GetEventTypes()).To(ConsistOf("WalletDeposited", "WalletWithdrawn"))
	})

	It("keeps projectors with distinct tag sets as separate items", func() {
		p1 := dcb.ProjectCounter("wallet", "WalletOpened", "wallet_id", "w1")
		p2 := dcb.ProjectCounter("course", "CourseDefined", "course_id", "c1")

		combined := dcb.CombineProjectorQueries([]dcb.StateProjector{p1, p2})
		Expect(combined.GetItems()).To(HaveLen(2))
	})
})

var _ = Describe("EventMatchesProjector", func() {
	projector := dcb.ProjectCounter("deposits", "WalletDeposited", "wallet_id", "w1")

	It("matches an event satisfying type and tags", func() {
		event := dcb.Event{Type: "WalletDeposited", Tags: dcb.NewTags("wallet_id", "w1")}
		Expect(dcb.EventMatchesProjector(event, projector)).To(BeTrue())
	})

	It("rejects an event of the wrong type", func() {
		event := dcb.Event{Type: "WalletWithdrawn", Tags: dcb.NewTags("wallet_id", "w1")}
		Expect(dcb.EventMatchesProjector(event, projector)).To(BeFalse())
	})

	It("rejects an event missing a required tag", func() {
		event := dcb.Event{Type: "WalletDeposited", Tags: dcb.NewTags("wallet_id", "w2")}
		Expect(dcb.EventMatchesProjector(event, projector)).To(BeFalse())
	})

	It("never matches a projector built over an empty query", func() {
		empty := dcb.StateProjector{ID: "none", Query: dcb.NewQueryEmpty(), InitialState: 0}
		event := dcb.Event{Type: "WalletDeposited", Tags: dcb.NewTags("wallet_id", "w1")}
		Expect(dcb.EventMatchesProjector(event, empty)).To(BeFalse())
	})
})
