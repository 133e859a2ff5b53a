package events

import "time"

// EventType represents different types of events in the system
type EventType string

const (
	EventTypeEntryConfirmed EventType = "entry_confirmed"
	EventTypeEntryRejected  EventType = "entry_rejected"
	EventTypeWinnerSelected EventType = "winner_selected"
	EventTypeRaffleExtended EventType = "raffle_extended"
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
}

// EntryConfirmedEvent fires after an entry settles successfully
type EntryConfirmedEvent struct {
	RaffleID             int64
	RaffleSlug           string
	EntryID              int64
	WalletAddress        string
	TicketQuantity       int
	TransactionSignature string
	Restored             bool
}

func (e EntryConfirmedEvent) Type() EventType {
	return EventTypeEntryConfirmed
}

// EntryRejectedEvent fires when settlement permanently rejects an entry
type EntryRejectedEvent struct {
	RaffleID int64
	EntryID  int64
	Reason   string
}

func (e EntryRejectedEvent) Type() EventType {
	return EventTypeEntryRejected
}

// WinnerSelectedEvent fires after a winner commit succeeds
type WinnerSelectedEvent struct {
	RaffleID     int64
	RaffleSlug   string
	WinnerWallet string
	TicketsHeld  int
	TotalTickets int
	SelectedAt   time.Time
}

func (e WinnerSelectedEvent) Type() EventType {
	return EventTypeWinnerSelected
}

// RaffleExtendedEvent fires after an outage-recovery extension
type RaffleExtendedEvent struct {
	RaffleID        int64
	RaffleSlug      string
	NewEndTime      time.Time
	OriginalEndTime time.Time
	ExtensionHours  int
}

func (e RaffleExtendedEvent) Type() EventType {
	return EventTypeRaffleExtended
}
