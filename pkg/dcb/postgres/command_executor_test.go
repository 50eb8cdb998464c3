package postgres_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"dcbstore/pkg/dcb"
	"dcbstore/pkg/dcb/postgres"
)

var _ = Describe("CommandExecutor", func() {
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

	openWallet := dcb.CommandHandlerFunc(func(ctx context.Context, store dcb.EventStore, command dcb.Command) ([]dcb.InputEvent, dcb.AppendCondition, error) {
		walletID := string(command.GetData())
		cond := dcb.NewAppendConditionWithIdempotency(
			dcb.NewQuery(dcb.NewTags("wallet_id", walletID)),
			dcb.NewQuery(dcb.NewTags("wallet_id", walletID), "WalletOpened"),
		)
		event := dcb.NewInputEvent("WalletOpened", dcb.NewTags("wallet_id", walletID), nil)
		return []dcb.InputEvent{event}, cond, nil
	})

	It("persists a command's events and returns ExecutionCreated", func() {
		executor, err := postgres.NewCommandExecutor(store, false, nil)
		Expect(err).NotTo(HaveOccurred())

		cmd := dcb.NewCommand("OpenWallet", []byte("w1"), nil)
		result, err := executor.Execute(ctx, cmd, openWallet)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Result).To(Equal(dcb.ExecutionCreated))

		got, err := store.Query(ctx, dcb.NewQueryAll(), dcb.ZeroCursor)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(HaveLen(1))
	})

	It("returns ExecutionIdempotent without writing a second event on retry", func() {
		executor, err := postgres.NewCommandExecutor(store, false, nil)
		Expect(err).NotTo(HaveOccurred())

		cmd := dcb.NewCommand("OpenWallet", []byte("w2"), nil)
		_, err = executor.Execute(ctx, cmd, openWallet)
		Expect(err).NotTo(HaveOccurred())

		result, err := executor.Execute(ctx, cmd, openWallet)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Result).To(Equal(dcb.ExecutionIdempotent))

		got, err := store.Query(ctx, dcb.NewQueryAll(), dcb.ZeroCursor)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(HaveLen(1))
	})

	It("writes a commands audit row when persistCommands is enabled", func() {
		executor, err := postgres.NewCommandExecutor(store, true, nil)
		Expect(err).NotTo(HaveOccurred())

		cmd := dcb.NewCommand("OpenWallet", []byte("w3"), map[string]interface{}{"actor": "test"})
		_, err = executor.Execute(ctx, cmd, openWallet)
		Expect(err).NotTo(HaveOccurred())

		var count int
		err = pool.QueryRow(ctx, "SELECT count(*) FROM commands WHERE command_type = $1", "OpenWallet").Scan(&count)
		Expect(err).NotTo(HaveOccurred())
		Expect(count).To(Equal(1))
	})

	It("acquires named locks in ExecuteWithLocks before running the handler", func() {
		executor, err := postgres.NewCommandExecutor(store, false, nil)
		Expect(err).NotTo(HaveOccurred())

		cmd := dcb.NewCommand("OpenWallet", []byte("w4"), nil)
		result, err := executor.ExecuteWithLocks(ctx, cmd, openWallet, []string{"wallet:w4", "wallet:w4", "wallet:w4-secondary"})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Result).To(Equal(dcb.ExecutionCreated))
	})

	It("propagates the handler's own error without appending anything", func() {
		executor, err := postgres.NewCommandExecutor(store, false, nil)
		Expect(err).NotTo(HaveOccurred())

		failing := dcb.CommandHandlerFunc(func(ctx context.Context, store dcb.EventStore, command dcb.Command) ([]dcb.InputEvent, dcb.AppendCondition, error) {
			return nil, nil, &dcb.ValidationError{Field: "wallet_id", Value: "bad"}
		})

		cmd := dcb.NewCommand("OpenWallet", []byte("w5"), nil)
		_, err = executor.Execute(ctx, cmd, failing)
		Expect(err).To(HaveOccurred())
		Expect(dcb.IsValidationError(err)).To(BeTrue())

		got, err := store.Query(ctx, dcb.NewQueryAll(), dcb.ZeroCursor)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(BeEmpty())
	})

	It("rejects a store not opened via postgres.Open", func() {
		_, err := postgres.NewCommandExecutor(nil, false, nil)
		Expect(err).To(HaveOccurred())
	})
})
