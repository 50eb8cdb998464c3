package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"dcbstore/pkg/dcb"
)

// Wallet domain: the balance-never-negative scenario of spec.md §8
// scenario 2, adapted from the teacher's transfer example
// (internal/examples/transfer/pkg/transfer.go) - same two-projector +
// AppendCondition shape, renamed to the wallet/balance vocabulary
// spec.md's own Event doc comment uses ("WalletOpened", "wallet_id").
const (
	CommandOpenWallet = "OpenWallet"
	CommandWithdraw    = "Withdraw"
	CommandDeposit     = "Deposit"
)

type WalletOpened struct {
	WalletID  string    `json:"wallet_id"`
	Owner     string    `json:"owner"`
	Balance   int       `json:"balance"`
	OpenedAt  time.Time `json:"opened_at"`
}

type WalletWithdrawn struct {
	WalletID    string    `json:"wallet_id"`
	Amount      int       `json:"amount"`
	NewBalance  int       `json:"new_balance"`
	WithdrawnAt time.Time `json:"withdrawn_at"`
}

type WalletDeposited struct {
	WalletID   string    `json:"wallet_id"`
	Amount     int       `json:"amount"`
	NewBalance int       `json:"new_balance"`
	DepositedAt time.Time `json:"deposited_at"`
}

type OpenWalletCommand struct {
	WalletID       string `json:"wallet_id"`
	Owner          string `json:"owner"`
	InitialBalance int    `json:"initial_balance"`
}

type WithdrawCommand struct {
	WalletID string `json:"wallet_id"`
	Amount   int    `json:"amount"`
}

type DepositCommand struct {
	WalletID string `json:"wallet_id"`
	Amount   int    `json:"amount"`
}

type walletState struct {
	WalletID string
	Opened   bool
	Balance  int
}

func walletProjector(walletID string) dcb.StateProjector {
	return dcb.StateProjector{
		ID: "wallet:" + walletID,
		Query: dcb.NewQuery(
			dcb.NewTags("wallet_id", walletID),
			"WalletOpened", "WalletWithdrawn", "WalletDeposited",
		),
		InitialState: &walletState{WalletID: walletID},
		TransitionFn: func(state any, event dcb.Event) any {
			s := state.(*walletState)
			switch event.Type {
			case "WalletOpened":
				var data WalletOpened
				if err := json.Unmarshal(event.Data, &data); err == nil {
					s.Opened = true
					s.Balance = data.Balance
				}
			case "WalletWithdrawn":
				var data WalletWithdrawn
				if err := json.Unmarshal(event.Data, &data); err == nil {
					s.Balance = data.NewBalance
				}
			case "WalletDeposited":
				var data WalletDeposited
				if err := json.Unmarshal(event.Data, &data); err == nil {
					s.Balance = data.NewBalance
				}
			}
			return s
		},
	}
}

// HandleOpenWallet rejects re-opening an already-opened wallet via an
// idempotency clause - spec.md §8 scenario 1's "open, then re-open"
// case.
func HandleOpenWallet(ctx context.Context, store dcb.EventStore, command dcb.Command) ([]dcb.InputEvent, dcb.AppendCondition, error) {
	var cmd OpenWalletCommand
	if err := json.Unmarshal(command.GetData(), &cmd); err != nil {
		return nil, nil, fmt.Errorf("wallet: unmarshal OpenWallet: %w", err)
	}

	event := WalletOpened{
		WalletID: cmd.WalletID,
		Owner:    cmd.Owner,
		Balance:  cmd.InitialBalance,
		OpenedAt: time.Now(),
	}
	data := dcb.ToJSON(event)

	idempotencyQuery := dcb.NewQuery(dcb.NewTags("wallet_id", cmd.WalletID), "WalletOpened")
	condition := dcb.NewAppendConditionWithIdempotency(dcb.NewQueryEmpty(), idempotencyQuery)

	return []dcb.InputEvent{
		dcb.NewInputEvent("WalletOpened", dcb.NewTags("wallet_id", cmd.WalletID), data),
	}, condition, nil
}

// HandleWithdraw implements spec.md §8 scenario 2: two concurrent
// withdrawals racing past a balance check must not both succeed. The
// AppendCondition pins the consistency query to the cursor the balance
// was projected from, so a concurrent withdrawal that commits first
// makes the second's appendIf fail CONCURRENT rather than silently
// overdrawing the wallet.
func HandleWithdraw(ctx context.Context, store dcb.EventStore, command dcb.Command) ([]dcb.InputEvent, dcb.AppendCondition, error) {
	var cmd WithdrawCommand
	if err := json.Unmarshal(command.GetData(), &cmd); err != nil {
		return nil, nil, fmt.Errorf("wallet: unmarshal Withdraw: %w", err)
	}

	states, condition, err := store.Project(ctx, []dcb.StateProjector{walletProjector(cmd.WalletID)}, dcb.ZeroCursor)
	if err != nil {
		return nil, nil, fmt.Errorf("wallet: project balance: %w", err)
	}
	wallet := states["wallet:"+cmd.WalletID].(*walletState)
	if !wallet.Opened {
		return nil, nil, fmt.Errorf("wallet: %s does not exist", cmd.WalletID)
	}
	if wallet.Balance < cmd.Amount {
		return nil, nil, fmt.Errorf("wallet: insufficient funds in %s: have %d, need %d", cmd.WalletID, wallet.Balance, cmd.Amount)
	}

	event := WalletWithdrawn{
		WalletID:    cmd.WalletID,
		Amount:      cmd.Amount,
		NewBalance:  wallet.Balance - cmd.Amount,
		WithdrawnAt: time.Now(),
	}

	return []dcb.InputEvent{
		dcb.NewInputEvent("WalletWithdrawn", dcb.NewTags("wallet_id", cmd.WalletID), dcb.ToJSON(event)),
	}, condition, nil
}

func HandleDeposit(ctx context.Context, store dcb.EventStore, command dcb.Command) ([]dcb.InputEvent, dcb.AppendCondition, error) {
	var cmd DepositCommand
	if err := json.Unmarshal(command.GetData(), &cmd); err != nil {
		return nil, nil, fmt.Errorf("wallet: unmarshal Deposit: %w", err)
	}

	states, condition, err := store.Project(ctx, []dcb.StateProjector{walletProjector(cmd.WalletID)}, dcb.ZeroCursor)
	if err != nil {
		return nil, nil, fmt.Errorf("wallet: project balance: %w", err)
	}
	wallet := states["wallet:"+cmd.WalletID].(*walletState)
	if !wallet.Opened {
		return nil, nil, fmt.Errorf("wallet: %s does not exist", cmd.WalletID)
	}

	event := WalletDeposited{
		WalletID:    cmd.WalletID,
		Amount:      cmd.Amount,
		NewBalance:  wallet.Balance + cmd.Amount,
		DepositedAt: time.Now(),
	}

	return []dcb.InputEvent{
		dcb.NewInputEvent("WalletDeposited", dcb.NewTags("wallet_id", cmd.WalletID), dcb.ToJSON(event)),
	}, condition, nil
}

// WalletHandler dispatches by command type, mirroring the teacher's
// transfer.HandleCommand unified-handler shape.
func WalletHandler(ctx context.Context, store dcb.EventStore, command dcb.Command) ([]dcb.InputEvent, dcb.AppendCondition, error) {
	switch command.GetType() {
	case CommandOpenWallet:
		return HandleOpenWallet(ctx, store, command)
	case CommandWithdraw:
		return HandleWithdraw(ctx, store, command)
	case CommandDeposit:
		return HandleDeposit(ctx, store, command)
	default:
		return nil, nil, fmt.Errorf("wallet: unknown command type %q", command.GetType())
	}
}
