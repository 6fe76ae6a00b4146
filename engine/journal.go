/*
journal.go - Append-only overtime journal

The journal is the authoritative event log of the overtime account. Every
entry records the running balance before and after itself, forming a chain:

  entries[i].balanceBefore == entries[i-1].balanceAfter   (journal order)

Journal order is (date ASC, createdAt ASC, id ASC). Appending derives the
new entry's balances from the current tail; deleting entries breaks the
chain, so every delete is followed by Rechain inside the same store
transaction.

All functions take a Store so they compose with TxStore.WithTx: pass the
tx-bound view and the whole chain mutation commits or rolls back as one.
*/
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Append derives the balance fields from the journal tail and persists the
// entry. The caller fills everything except ID, BalanceBefore, BalanceAfter
// and CreatedAt.
func Append(ctx context.Context, s Store, tx *Transaction, now time.Time) error {
	last, err := s.LastTransaction(ctx, tx.UserID)
	if err != nil {
		return err
	}
	before := decimal.Zero
	if last != nil {
		before = last.BalanceAfter
	}

	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	tx.BalanceBefore = before
	tx.BalanceAfter = before.Add(tx.Hours)
	tx.CreatedAt = now
	return s.AppendTransaction(ctx, tx)
}

// Rechain re-derives every balanceBefore/balanceAfter for the user from a
// zero opening balance, in journal order. Entries whose balances already
// match are left untouched.
func Rechain(ctx context.Context, s Store, userID string) error {
	txs, err := s.Transactions(ctx, userID, TransactionFilter{})
	if err != nil {
		return err
	}

	running := decimal.Zero
	dirty := make([]Transaction, 0)
	for i := range txs {
		after := running.Add(txs[i].Hours)
		if !txs[i].BalanceBefore.Equal(running) || !txs[i].BalanceAfter.Equal(after) {
			txs[i].BalanceBefore = running
			txs[i].BalanceAfter = after
			dirty = append(dirty, txs[i])
		}
		running = after
	}

	if len(dirty) == 0 {
		return nil
	}
	return s.UpdateTransactionBalances(ctx, dirty)
}

// Balance returns the user's current overtime balance: the tail's
// balanceAfter, or zero for an empty journal.
func Balance(ctx context.Context, s Store, userID string) (decimal.Decimal, error) {
	last, err := s.LastTransaction(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	if last == nil {
		return decimal.Zero, nil
	}
	return last.BalanceAfter, nil
}

// BalanceAsOf returns the balance after the last entry dated on or before
// the cutoff. Entries dated later are ignored even when created earlier.
func BalanceAsOf(ctx context.Context, s Store, userID string, cutoff Date) (decimal.Decimal, error) {
	txs, err := s.Transactions(ctx, userID, TransactionFilter{To: &cutoff})
	if err != nil {
		return decimal.Zero, err
	}
	if len(txs) == 0 {
		return decimal.Zero, nil
	}
	return txs[len(txs)-1].BalanceAfter, nil
}

// VerifyChain walks the user's journal and returns the index of the first
// entry that breaks the chain, or -1 when the chain is sound. Used by the
// consistency report and tests.
func VerifyChain(ctx context.Context, s Store, userID string) (int, error) {
	txs, err := s.Transactions(ctx, userID, TransactionFilter{})
	if err != nil {
		return -1, err
	}
	running := decimal.Zero
	for i, tx := range txs {
		if !tx.BalanceBefore.Equal(running) {
			return i, nil
		}
		if !tx.BalanceAfter.Equal(running.Add(tx.Hours)) {
			return i, nil
		}
		running = tx.BalanceAfter
	}
	return -1, nil
}
