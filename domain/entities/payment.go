package entities

import "math"

// PaymentFact is the normalized payment extracted from a ledger transaction:
// who paid, how much, and in which currency.
type PaymentFact struct {
	Signature string   `json:"signature"`
	Sender    string   `json:"sender"`
	Amount    float64  `json:"amount"`
	Currency  Currency `json:"currency"`
	Slot      uint64   `json:"slot"`
}

// TicketQuantity computes how many whole tickets the payment covers at the
// given price, or 0 if the price is not positive.
func (p *PaymentFact) TicketQuantity(ticketPrice float64) int {
	if ticketPrice <= 0 {
		return 0
	}
	return int(math.Floor(p.Amount / ticketPrice))
}

// IsExactMultiple reports whether the payment amount is a whole-ticket
// multiple of the price within the given absolute tolerance.
func (p *PaymentFact) IsExactMultiple(ticketPrice, tolerance float64) bool {
	qty := p.TicketQuantity(ticketPrice)
	if qty <= 0 {
		return false
	}
	return math.Abs(p.Amount-float64(qty)*ticketPrice) <= tolerance
}

// Candidate is one possible raffle for an ambiguous payment, ranked by a
// confidence score so the caller can retry with an explicit slug.
type Candidate struct {
	RaffleID    int64    `json:"-"`
	Slug        string   `json:"slug"`
	Title       string   `json:"title"`
	TicketPrice float64  `json:"ticket_price"`
	Currency    Currency `json:"currency"`
	Confidence  float64  `json:"confidence"`
}
