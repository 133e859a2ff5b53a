package interfaces

import (
	"context"
	"time"

	"raffler/domain/entities"
)

// LedgerReader fetches and verifies payments against the external ledger
type LedgerReader interface {
	// FetchPayment fetches a transaction by signature, trying multiple
	// commitment levels with retry, and extracts the normalized payment
	// fact. Failures carry one of the CONFIG / NOT_FOUND / PARSE_FAILED
	// error kinds.
	FetchPayment(ctx context.Context, signature string) (*entities.PaymentFact, error)

	// VerifyPayment re-checks a signature against an expected amount and
	// currency. Failures are classified as permanent (MISMATCH,
	// PARSE_FAILED) or temporary (NOT_FOUND, TEMPORARY_VERIFICATION).
	VerifyPayment(ctx context.Context, signature string, amount float64, currency entities.Currency) error
}

// Reconciliation is the outcome of resolving a signature to an entry. The
// variants are mutually exclusive: either the payment resolved to exactly one
// entry or the caller must disambiguate between candidate raffles.
type Reconciliation struct {
	Entry   *entities.Entry
	Raffle  *entities.Raffle
	Payment *entities.PaymentFact

	// Restored is true when the entry was created or matched through
	// reconciliation rather than holding the signature from the start
	Restored bool
}

// ReconciliationService resolves unmatched transaction signatures to entries
type ReconciliationService interface {
	// Reconcile finds or creates the one entry a payment settles.
	// raffleSlug may be empty, in which case all non-draft raffles are
	// scanned and an AMBIGUOUS error with ranked candidates is returned
	// when more than one matches.
	Reconcile(ctx context.Context, signature, raffleSlug string) (*Reconciliation, error)
}

// SettlementService re-validates payments and transitions entries
type SettlementService interface {
	// VerifyBySignature resolves the signature (directly or via
	// reconciliation) and settles the resulting entry. adminWallet, when
	// non-empty, is recorded on restored entries for the audit trail.
	VerifyBySignature(ctx context.Context, signature, raffleSlug, adminWallet string) (*entities.VerificationResult, error)

	// VerifyEntry settles a known entry against a signature
	VerifyEntry(ctx context.Context, entryID int64, signature, adminWallet string) (*entities.VerificationResult, error)
}

// WinnerService evaluates draw eligibility and selects winners
type WinnerService interface {
	// CheckEligibility evaluates the draw state machine for a raffle
	CheckEligibility(ctx context.Context, raffleID int64) (*entities.Eligibility, error)

	// SelectWinner performs the weighted random draw and commits the winner
	// atomically. forceOverride bypasses eligibility gates but never the
	// requirement of at least one confirmed entry. When a concurrent draw
	// already committed, the existing winner is returned.
	SelectWinner(ctx context.Context, raffleID int64, forceOverride bool) (*entities.DrawResult, error)
}

// LifecycleService covers raffle lifecycle maintenance outside the draw path
type LifecycleService interface {
	// Restore extends an ended, winnerless raffle's active window after an
	// outage. extensionHours must be one of 24, 72, 168.
	Restore(ctx context.Context, raffleID int64, extensionHours int) (*entities.Raffle, error)

	// PromoteScheduled flips draft raffles to live once start_time elapses
	PromoteScheduled(ctx context.Context) (int64, error)

	// SweepEnded marks ended raffles that pass eligibility as ready to draw
	// and returns those that ended without meeting quorum
	SweepEnded(ctx context.Context, now time.Time) ([]*entities.Raffle, error)
}
