package entities

import (
	"fmt"
	"time"
)

// ErrorKind classifies a reconciliation or settlement failure
type ErrorKind string

const (
	// ErrorKindConfig means the recipient wallet is not configured. Fatal,
	// an operator must fix the deployment.
	ErrorKindConfig ErrorKind = "CONFIG"

	// ErrorKindNotFound means the ledger has not seen the signature yet.
	// Retryable by the caller after a delay.
	ErrorKindNotFound ErrorKind = "NOT_FOUND"

	// ErrorKindParseFailed means the transaction exists but is not a
	// recognized payment to the recipient wallet.
	ErrorKindParseFailed ErrorKind = "PARSE_FAILED"

	// ErrorKindAmbiguous means more than one raffle matches the payment and
	// the caller must supply a raffle slug.
	ErrorKindAmbiguous ErrorKind = "AMBIGUOUS"

	// ErrorKindMismatch means an entry/raffle, currency, or amount invariant
	// was violated.
	ErrorKindMismatch ErrorKind = "MISMATCH"

	// ErrorKindCapacity means confirming the entry would push the raffle
	// past max_tickets.
	ErrorKindCapacity ErrorKind = "CAPACITY"

	// ErrorKindTemporary means the ledger re-check failed for a reason that
	// looks transient. The entry stays pending and retrying is safe.
	ErrorKindTemporary ErrorKind = "TEMPORARY_VERIFICATION"
)

// VerificationError is the structured failure returned by reconciliation and
// settlement. It carries enough detail for an operator to resolve the payment
// manually through the signature-lookup tool.
type VerificationError struct {
	Kind       ErrorKind
	Message    string
	Suggestion string
	Candidates []Candidate
	Payment    *PaymentFact
	Err        error
}

func (e *VerificationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *VerificationError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true for failures the caller may simply retry later
func (e *VerificationError) IsRetryable() bool {
	return e.Kind == ErrorKindNotFound || e.Kind == ErrorKindTemporary
}

// VerificationStatus is the outcome class of a settlement attempt
type VerificationStatus string

const (
	VerificationConfirmed    VerificationStatus = "confirmed"
	VerificationRejected     VerificationStatus = "rejected"
	VerificationPendingRetry VerificationStatus = "pending_retry"
)

// VerificationResult is produced upward to the admin/UI layer after a
// settlement attempt.
type VerificationResult struct {
	RequestID string             `json:"request_id"`
	Status    VerificationStatus `json:"status"`
	Entry     *Entry             `json:"entry"`
	Raffle    *Raffle            `json:"raffle"`
	Restored  bool               `json:"restored"`
}

// EligibilityError reports a draw attempt blocked by the eligibility state
// machine, listing every gate that failed.
type EligibilityError struct {
	RaffleSlug  string
	FailedGates []EligibilityGate
}

func (e *EligibilityError) Error() string {
	return fmt.Sprintf("raffle %s is not eligible for a draw: %v", e.RaffleSlug, e.FailedGates)
}

// DrawResult is produced upward after a successful winner selection, or when
// a concurrent draw already committed a winner.
type DrawResult struct {
	Raffle       *Raffle   `json:"raffle"`
	WinnerWallet string    `json:"winner_wallet"`
	TicketsHeld  int       `json:"tickets_held"`
	TotalTickets int       `json:"total_tickets"`
	SelectedAt   time.Time `json:"selected_at"`
	AlreadyDrawn bool      `json:"already_drawn"` // true when another draw won the commit race
}
