package interfaces

import (
	"context"
	"errors"
	"time"

	"raffler/domain/entities"
	"raffler/domain/events"
)

// ErrDuplicateSignature is returned when a write would attach a transaction
// signature that another entry already holds. Callers should re-read by
// signature and treat the existing row as authoritative.
var ErrDuplicateSignature = errors.New("transaction signature already attached to another entry")

// ConfirmOutcome reports what a confirm attempt did
type ConfirmOutcome int

const (
	// ConfirmCommitted means this call transitioned the entry to confirmed
	ConfirmCommitted ConfirmOutcome = iota
	// ConfirmAlreadyConfirmed means the entry was confirmed earlier; the
	// call was an idempotent no-op
	ConfirmAlreadyConfirmed
	// ConfirmCapacityExceeded means confirming would push the raffle past
	// max_tickets; the entry was left pending
	ConfirmCapacityExceeded
	// ConfirmNotPending means the entry is rejected or missing
	ConfirmNotPending
)

// RaffleRepository defines the interface for raffle data access
type RaffleRepository interface {
	// GetByID retrieves a raffle by its ID
	GetByID(ctx context.Context, id int64) (*entities.Raffle, error)

	// GetBySlug retrieves a raffle by its slug
	GetBySlug(ctx context.Context, slug string) (*entities.Raffle, error)

	// ListNonDraft returns every raffle that has left draft status
	ListNonDraft(ctx context.Context) ([]*entities.Raffle, error)

	// ListEndedWithoutWinner returns raffles whose end time has passed and
	// whose winner is still unset, for the lifecycle sweep
	ListEndedWithoutWinner(ctx context.Context, before time.Time) ([]*entities.Raffle, error)

	// Create creates a new raffle
	Create(ctx context.Context, raffle *entities.Raffle) error

	// UpdateStatus updates a raffle's lifecycle status
	UpdateStatus(ctx context.Context, id int64, status entities.RaffleStatus) error

	// PromoteScheduled flips draft raffles to live once their start time has
	// passed, returning the number promoted
	PromoteScheduled(ctx context.Context, now time.Time) (int64, error)

	// SetWinner commits the winner conditionally: the write succeeds only if
	// winner_wallet is currently NULL. Returns false when another draw
	// already committed.
	SetWinner(ctx context.Context, id int64, wallet string, at time.Time) (bool, error)

	// UpdateEndTime sets a new end time and, when originalEnd is non-nil and
	// the column is still NULL, captures the original end time
	UpdateEndTime(ctx context.Context, id int64, newEnd time.Time, originalEnd *time.Time) error
}

// EntryRepository defines the interface for entry data access
type EntryRepository interface {
	// GetByID retrieves an entry by its ID
	GetByID(ctx context.Context, id int64) (*entities.Entry, error)

	// GetByTransactionSignature retrieves the entry holding a signature, or
	// nil if no entry holds it
	GetByTransactionSignature(ctx context.Context, signature string) (*entities.Entry, error)

	// Create creates a new entry. A unique violation on the transaction
	// signature is surfaced as ErrDuplicateSignature so callers can re-read.
	Create(ctx context.Context, entry *entities.Entry) error

	// ListByRaffle returns all entries for a raffle
	ListByRaffle(ctx context.Context, raffleID int64) ([]*entities.Entry, error)

	// SumConfirmedTickets returns the confirmed ticket total for a raffle,
	// excluding the given entry ID when it is non-zero
	SumConfirmedTickets(ctx context.Context, raffleID int64, excludeEntryID int64) (int, error)

	// AttachSignature persists a signature onto an entry that does not have
	// one yet, resetting a reused rejected entry back to pending. A unique
	// violation is surfaced as ErrDuplicateSignature.
	AttachSignature(ctx context.Context, id int64, signature string) error

	// Confirm transitions an entry to confirmed and sets verified_at. The
	// capacity check against maxTickets (nil = uncapped) runs inside the
	// same transaction under a raffle row lock, so concurrent confirmations
	// near the cap serialize instead of both passing.
	Confirm(ctx context.Context, id int64, maxTickets *int, at time.Time) (ConfirmOutcome, error)

	// Reject transitions an entry to rejected
	Reject(ctx context.Context, id int64) error

	// MarkRestored records that the entry was recovered via reconciliation
	MarkRestored(ctx context.Context, id int64, by *string, at time.Time) error
}

// EventPublisher defines the interface for publishing domain events
type EventPublisher interface {
	Publish(event events.Event) error
}
