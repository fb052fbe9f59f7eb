package memstore

import (
	"context"

	"github.com/google/uuid"

	"github.com/semanticallynull/rental-backend/wallet"
)

func (s *Store) Append(_ context.Context, t wallet.Transaction) (wallet.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(t)
}

func (s *Store) appendLocked(t wallet.Transaction) (wallet.Transaction, error) {
	key := string(t.Type) + "|" + t.Reference
	if _, dup := s.references[key]; dup {
		return wallet.Transaction{}, wallet.ErrDuplicateReference
	}
	s.references[key] = len(s.transactions)
	s.transactions = append(s.transactions, t)
	return t, nil
}

func (s *Store) AppendCharge(_ context.Context, t wallet.Transaction, floor int64) (wallet.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendChargeLocked(t, floor)
}

func (s *Store) appendChargeLocked(t wallet.Transaction, floor int64) (wallet.Transaction, error) {
	if s.balanceLocked(t.UserID)+t.Amount < floor {
		return wallet.Transaction{}, wallet.ErrInsufficientFunds
	}
	return s.appendLocked(t)
}

func (s *Store) Settle(_ context.Context, reference string, status wallet.Status) (wallet.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.references[string(wallet.TypeDeposit)+"|"+reference]
	if !ok {
		return wallet.Transaction{}, wallet.ErrNotFound
	}
	t := &s.transactions[i]
	if t.Status != wallet.StatusPending {
		return *t, wallet.ErrAlreadySettled
	}
	at := s.now()
	t.Status = status
	t.SettledAt = &at
	return *t, nil
}

func (s *Store) Balance(_ context.Context, userID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balanceLocked(userID), nil
}

func (s *Store) balanceLocked(userID uuid.UUID) int64 {
	var sum int64
	for _, t := range s.transactions {
		if t.UserID == userID && t.Counts() {
			sum += t.Amount
		}
	}
	return sum
}

func (s *Store) SecurityDeposit(_ context.Context, userID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sum int64
	for _, t := range s.transactions {
		if t.UserID == userID && t.Type == wallet.TypeSecurityDeposit && t.Status == wallet.StatusCompleted {
			sum += t.Amount
		}
	}
	return sum, nil
}

// Transactions returns a user's rows newest first.
func (s *Store) Transactions(_ context.Context, userID uuid.UUID) ([]wallet.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var txs []wallet.Transaction
	for i := len(s.transactions) - 1; i >= 0; i-- {
		if s.transactions[i].UserID == userID {
			txs = append(txs, s.transactions[i])
		}
	}
	return txs, nil
}
