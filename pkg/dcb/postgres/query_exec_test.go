package postgres_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"dcbstore/pkg/dcb"
	"dcbstore/pkg/dcb/postgres"
)

var _ = Describe("Query / QueryStream", func() {
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

		_, err = store.Append(ctx, []dcb.InputEvent{
			dcb.NewInputEvent("WalletOpened", dcb.NewTags("wallet_id", "w1"), nil),
			dcb.NewInputEvent("WalletOpened", dcb.NewTags("wallet_id", "w2"), nil),
			dcb.NewInputEvent("CourseDefined", dcb.NewTags("course_id", "c1"), nil),
		})
		Expect(err).NotTo(HaveOccurred())
	})

	It("filters by tag", func() {
		got, err := store.Query(ctx, dcb.NewQuery(dcb.NewTags("wallet_id", "w1")), dcb.ZeroCursor)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(HaveLen(1))
		Expect(got[0].Type).To(Equal("WalletOpened"))
	})

	It("an empty query returns nothing, not everything", func() {
		got, err := store.Query(ctx, dcb.NewQueryEmpty(), dcb.ZeroCursor)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(BeEmpty())
	})

	It("only returns events committed after the given cursor", func() {
		all, err := store.Query(ctx, dcb.NewQueryAll(), dcb.ZeroCursor)
		Expect(err).NotTo(HaveOccurred())
		Expect(all).To(HaveLen(3))

		afterFirst := dcb.Cursor{TransactionID: all[0].TransactionID, Position: all[0].Position}
		rest, err := store.Query(ctx, dcb.NewQueryAll(), afterFirst)
		Expect(err).NotTo(HaveOccurred())
		Expect(rest).To(HaveLen(2))
	})

	It("streams the same events QueryStream returns over a channel", func() {
		ch, err := store.QueryStream(ctx, dcb.NewQueryAll(), dcb.ZeroCursor)
		Expect(err).NotTo(HaveOccurred())

		var streamed []dcb.Event
		for event := range ch {
			streamed = append(streamed, event)
		}
		Expect(streamed).To(HaveLen(3))
	})
})
