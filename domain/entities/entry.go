package entities

import (
	"strings"
	"time"
)

// EntryStatus represents the settlement state of an entry
type EntryStatus string

const (
	EntryStatusPending   EntryStatus = "pending"
	EntryStatusConfirmed EntryStatus = "confirmed"
	EntryStatusRejected  EntryStatus = "rejected"
)

// Entry represents one participant's paid (or pending) position in a raffle
type Entry struct {
	ID                   int64       `db:"id" json:"id"`
	RaffleID             int64       `db:"raffle_id" json:"raffle_id"`
	WalletAddress        string      `db:"wallet_address" json:"wallet_address"`
	TicketQuantity       int         `db:"ticket_quantity" json:"ticket_quantity"`
	AmountPaid           float64     `db:"amount_paid" json:"amount_paid"`
	Currency             Currency    `db:"currency" json:"currency"`
	TransactionSignature *string     `db:"transaction_signature" json:"transaction_signature"` // NULL until settlement, then unique
	Status               EntryStatus `db:"status" json:"status"`
	CreatedAt            time.Time   `db:"created_at" json:"created_at"`
	VerifiedAt           *time.Time  `db:"verified_at" json:"verified_at"`
	RestoredAt           *time.Time  `db:"restored_at" json:"restored_at"`
	RestoredBy           *string     `db:"restored_by" json:"restored_by"`
}

// IsConfirmed returns true once the entry has been settled successfully
func (e *Entry) IsConfirmed() bool {
	return e.Status == EntryStatusConfirmed
}

// IsTerminal returns true if the entry can no longer change status
func (e *Entry) IsTerminal() bool {
	return e.Status == EntryStatusConfirmed || e.Status == EntryStatusRejected
}

// HasSignature returns true if a transaction signature is attached
func (e *Entry) HasSignature() bool {
	return e.TransactionSignature != nil && *e.TransactionSignature != ""
}

// WasRestored returns true if the entry was matched to its payment through
// reconciliation rather than at creation time.
func (e *Entry) WasRestored() bool {
	return e.RestoredAt != nil
}

// MatchesWallet compares wallet addresses case-insensitively
func (e *Entry) MatchesWallet(wallet string) bool {
	return strings.EqualFold(e.WalletAddress, wallet)
}

// MatchesPayment reports whether this entry looks like the unsettled entry
// for a payment of the given amount and currency: same wallet, not yet
// confirmed, no signature attached, amount within tolerance. An entry that
// already holds a signature is tied to a different payment and must not be
// reused.
func (e *Entry) MatchesPayment(wallet string, amount float64, currency Currency, tolerance float64) bool {
	if e.Status != EntryStatusPending && e.Status != EntryStatusRejected {
		return false
	}
	if e.HasSignature() {
		return false
	}
	if !e.MatchesWallet(wallet) {
		return false
	}
	if e.Currency != currency {
		return false
	}
	diff := e.AmountPaid - amount
	if diff < 0 {
		diff = -diff
	}
	return diff < tolerance
}
