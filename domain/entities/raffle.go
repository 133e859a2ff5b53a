package entities

import (
	"time"
)

// RaffleStatus represents the lifecycle state of a raffle
type RaffleStatus string

const (
	RaffleStatusDraft       RaffleStatus = "draft"
	RaffleStatusLive        RaffleStatus = "live"
	RaffleStatusReadyToDraw RaffleStatus = "ready_to_draw"
	RaffleStatusCompleted   RaffleStatus = "completed"
)

// Currency identifies the payment currency of a raffle or entry
type Currency string

const (
	CurrencySOL  Currency = "SOL"
	CurrencyUSDC Currency = "USDC"
	CurrencyOWL  Currency = "OWL"
)

// ExtensionGracePeriod is how long after the original end time a draw must
// wait once a raffle has been extended, so latecomers get a fair window.
const ExtensionGracePeriod = 7 * 24 * time.Hour

// Raffle represents a single ticketed raffle priced in on-chain currency
type Raffle struct {
	ID               int64        `db:"id" json:"id"`
	Slug             string       `db:"slug" json:"slug"`
	Title            string       `db:"title" json:"title"`
	TicketPrice      float64      `db:"ticket_price" json:"ticket_price"`
	Currency         Currency     `db:"currency" json:"currency"`
	MaxTickets       *int         `db:"max_tickets" json:"max_tickets"` // NULL = uncapped
	MinTickets       *int         `db:"min_tickets" json:"min_tickets"` // NULL = no quorum
	StartTime        time.Time    `db:"start_time" json:"start_time"`
	EndTime          time.Time    `db:"end_time" json:"end_time"`
	OriginalEndTime  *time.Time   `db:"original_end_time" json:"original_end_time"` // NULL until first extension
	Status           RaffleStatus `db:"status" json:"status"`
	WinnerWallet     *string      `db:"winner_wallet" json:"winner_wallet"`
	WinnerSelectedAt *time.Time   `db:"winner_selected_at" json:"winner_selected_at"`
	CreatedAt        time.Time    `db:"created_at" json:"created_at"`
}

// HasWinner returns true once a winner has been committed
func (r *Raffle) HasWinner() bool {
	return r.WinnerWallet != nil && r.WinnerSelectedAt != nil
}

// HasEnded returns true if the raffle's end time has passed
func (r *Raffle) HasEnded(now time.Time) bool {
	return !now.Before(r.EndTime)
}

// WasExtended returns true if the raffle has been extended at least once
func (r *Raffle) WasExtended() bool {
	return r.OriginalEndTime != nil
}

// IsOpenForEntries returns true if a payment arriving now could settle
// against this raffle. Draft raffles never accept entries.
func (r *Raffle) IsOpenForEntries() bool {
	return r.Status != RaffleStatusDraft && !r.HasWinner()
}

// EligibilityGate names a single draw precondition
type EligibilityGate string

const (
	GateNotEnded        EligibilityGate = "not_ended"
	GateQuorum          EligibilityGate = "quorum"
	GateExtensionWindow EligibilityGate = "extension_window"
	GateNoEntries       EligibilityGate = "no_entries"
	GateAlreadyDrawn    EligibilityGate = "already_drawn"
)

// Eligibility reports whether a raffle may be drawn and, if not, which
// gates failed.
type Eligibility struct {
	Eligible    bool
	FailedGates []EligibilityGate
}

// DrawEligibility evaluates the draw state machine against the confirmed
// ticket total. Rules:
//   - the raffle must have ended and must not already have a winner
//   - if min_tickets is set, confirmed tickets must meet it
//   - if the raffle was extended, at least ExtensionGracePeriod must have
//     elapsed since the original end time
func (r *Raffle) DrawEligibility(confirmedTickets int, now time.Time) Eligibility {
	var failed []EligibilityGate

	if r.HasWinner() {
		failed = append(failed, GateAlreadyDrawn)
	}
	if !r.HasEnded(now) {
		failed = append(failed, GateNotEnded)
	}
	if r.MinTickets != nil && confirmedTickets < *r.MinTickets {
		failed = append(failed, GateQuorum)
	}
	if r.MinTickets != nil && r.WasExtended() && now.Sub(*r.OriginalEndTime) < ExtensionGracePeriod {
		failed = append(failed, GateExtensionWindow)
	}

	return Eligibility{Eligible: len(failed) == 0, FailedGates: failed}
}

// CanRestore returns true if the raffle qualifies for an outage extension:
// it has ended with no winner committed.
func (r *Raffle) CanRestore(now time.Time) bool {
	return !r.HasWinner() && r.HasEnded(now)
}

// Extend pushes the end time out by the given duration, capturing the
// original end time exactly once on the first extension.
func (r *Raffle) Extend(d time.Duration, now time.Time) {
	if r.OriginalEndTime == nil {
		end := r.EndTime
		r.OriginalEndTime = &end
	}
	newEnd := now.Add(d)
	r.EndTime = newEnd
}

// CommitWinner records the winner on the in-memory raffle. The repository
// is responsible for making the corresponding write conditional.
func (r *Raffle) CommitWinner(wallet string, at time.Time) {
	r.WinnerWallet = &wallet
	r.WinnerSelectedAt = &at
	r.Status = RaffleStatusCompleted
}
