package testutil

import (
	"fmt"
	"time"

	"raffler/domain/entities"
)

// CreateTestRaffle creates a live raffle with sensible defaults
func CreateTestRaffle(slug string) *entities.Raffle {
	now := time.Now().UTC()
	return &entities.Raffle{
		Slug:        slug,
		Title:       "Test raffle " + slug,
		TicketPrice: 1.0,
		Currency:    entities.CurrencySOL,
		StartTime:   now.Add(-24 * time.Hour),
		EndTime:     now.Add(24 * time.Hour),
		Status:      entities.RaffleStatusLive,
	}
}

// CreateEndedTestRaffle creates a raffle whose end time has already passed
func CreateEndedTestRaffle(slug string) *entities.Raffle {
	raffle := CreateTestRaffle(slug)
	raffle.EndTime = time.Now().UTC().Add(-time.Hour)
	return raffle
}

// CreateTestEntry creates a pending entry for the given raffle and wallet
func CreateTestEntry(raffleID int64, wallet string, tickets int) *entities.Entry {
	return &entities.Entry{
		RaffleID:       raffleID,
		WalletAddress:  wallet,
		TicketQuantity: tickets,
		AmountPaid:     float64(tickets),
		Currency:       entities.CurrencySOL,
		Status:         entities.EntryStatusPending,
	}
}

// CreateTestEntryWithSignature creates a pending entry already holding a
// transaction signature
func CreateTestEntryWithSignature(raffleID int64, wallet string, tickets int, signature string) *entities.Entry {
	entry := CreateTestEntry(raffleID, wallet, tickets)
	entry.TransactionSignature = &signature
	return entry
}

// UniqueSignature builds a signature unique within a test
func UniqueSignature(prefix string, n int) string {
	return fmt.Sprintf("%s-%d-%d", prefix, n, time.Now().UnixNano())
}
