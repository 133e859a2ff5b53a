package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"time"

	"raffler/domain/entities"
	"raffler/domain/events"
	"raffler/domain/interfaces"

	log "github.com/sirupsen/logrus"
)

// winnerService evaluates draw eligibility and selects winners
type winnerService struct {
	raffleRepo interfaces.RaffleRepository
	entryRepo  interfaces.EntryRepository
	publisher  interfaces.EventPublisher
}

// NewWinnerService creates a new winner service
func NewWinnerService(
	raffleRepo interfaces.RaffleRepository,
	entryRepo interfaces.EntryRepository,
	publisher interfaces.EventPublisher,
) interfaces.WinnerService {
	return &winnerService{
		raffleRepo: raffleRepo,
		entryRepo:  entryRepo,
		publisher:  publisher,
	}
}

// CheckEligibility evaluates the draw state machine for a raffle
func (s *winnerService) CheckEligibility(ctx context.Context, raffleID int64) (*entities.Eligibility, error) {
	raffle, err := s.raffleRepo.GetByID(ctx, raffleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load raffle %d: %w", raffleID, err)
	}
	if raffle == nil {
		return nil, fmt.Errorf("raffle %d not found", raffleID)
	}

	confirmed, err := s.entryRepo.SumConfirmedTickets(ctx, raffleID, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to sum confirmed tickets: %w", err)
	}

	eligibility := raffle.DrawEligibility(confirmed, time.Now().UTC())
	return &eligibility, nil
}

// SelectWinner performs the weighted random draw and commits the winner with
// a conditional write. When a concurrent draw already committed, the
// existing winner is returned instead of an error.
func (s *winnerService) SelectWinner(ctx context.Context, raffleID int64, forceOverride bool) (*entities.DrawResult, error) {
	raffle, err := s.raffleRepo.GetByID(ctx, raffleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load raffle %d: %w", raffleID, err)
	}
	if raffle == nil {
		return nil, fmt.Errorf("raffle %d not found", raffleID)
	}

	entries, err := s.entryRepo.ListByRaffle(ctx, raffleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries for raffle %d: %w", raffleID, err)
	}
	tickets := TicketsByWallet(entries)
	total := 0
	for _, count := range tickets {
		total += count
	}

	if raffle.HasWinner() {
		return s.existingWinnerResult(raffle, tickets, total), nil
	}

	// forceOverride bypasses the eligibility gates but never the
	// requirement of at least one confirmed entry.
	if total == 0 {
		return nil, errors.New("raffle has no confirmed entries to draw from")
	}
	if !forceOverride {
		eligibility := raffle.DrawEligibility(total, time.Now().UTC())
		if !eligibility.Eligible {
			return nil, &entities.EligibilityError{
				RaffleSlug:  raffle.Slug,
				FailedGates: eligibility.FailedGates,
			}
		}
	}

	winner, err := PickWeightedWinner(tickets)
	if err != nil {
		return nil, fmt.Errorf("failed to draw winner: %w", err)
	}

	now := time.Now().UTC()
	committed, err := s.raffleRepo.SetWinner(ctx, raffleID, winner, now)
	if err != nil {
		return nil, fmt.Errorf("failed to commit winner for raffle %d: %w", raffleID, err)
	}
	if !committed {
		// Lost the commit race: re-read and report the committed winner
		raffle, err = s.raffleRepo.GetByID(ctx, raffleID)
		if err != nil {
			return nil, fmt.Errorf("failed to re-read raffle %d: %w", raffleID, err)
		}
		if raffle == nil || !raffle.HasWinner() {
			return nil, fmt.Errorf("winner commit for raffle %d lost a race but no winner is set", raffleID)
		}
		return s.existingWinnerResult(raffle, tickets, total), nil
	}

	raffle.CommitWinner(winner, now)

	log.WithFields(log.Fields{
		"raffle":       raffle.Slug,
		"winner":       winner,
		"ticketsHeld":  tickets[winner],
		"totalTickets": total,
		"force":        forceOverride,
	}).Info("winner selected")

	if s.publisher != nil {
		if err := s.publisher.Publish(events.WinnerSelectedEvent{
			RaffleID:     raffle.ID,
			RaffleSlug:   raffle.Slug,
			WinnerWallet: winner,
			TicketsHeld:  tickets[winner],
			TotalTickets: total,
			SelectedAt:   now,
		}); err != nil {
			log.WithError(err).Warn("failed to publish winner event")
		}
	}

	return &entities.DrawResult{
		Raffle:       raffle,
		WinnerWallet: winner,
		TicketsHeld:  tickets[winner],
		TotalTickets: total,
		SelectedAt:   now,
	}, nil
}

func (s *winnerService) existingWinnerResult(raffle *entities.Raffle, tickets map[string]int, total int) *entities.DrawResult {
	return &entities.DrawResult{
		Raffle:       raffle,
		WinnerWallet: *raffle.WinnerWallet,
		TicketsHeld:  tickets[*raffle.WinnerWallet],
		TotalTickets: total,
		SelectedAt:   *raffle.WinnerSelectedAt,
		AlreadyDrawn: true,
	}
}

// TicketsByWallet aggregates confirmed ticket counts per wallet address
func TicketsByWallet(entries []*entities.Entry) map[string]int {
	tickets := make(map[string]int)
	for _, entry := range entries {
		if entry.IsConfirmed() {
			tickets[entry.WalletAddress] += entry.TicketQuantity
		}
	}
	return tickets
}

// PickWeightedWinner draws a wallet with probability proportional to its
// ticket count. Wallets are walked in sorted order so the draw is a pure
// function of the ticket map and the random value.
func PickWeightedWinner(tickets map[string]int) (string, error) {
	wallets := make([]string, 0, len(tickets))
	total := int64(0)
	for wallet, count := range tickets {
		if count <= 0 {
			continue
		}
		wallets = append(wallets, wallet)
		total += int64(count)
	}
	if total <= 0 {
		return "", errors.New("no tickets to draw from")
	}
	sort.Strings(wallets)

	n, err := rand.Int(rand.Reader, big.NewInt(total))
	if err != nil {
		return "", fmt.Errorf("random generation failed: %w", err)
	}
	r := n.Int64()

	for _, wallet := range wallets {
		r -= int64(tickets[wallet])
		if r < 0 {
			return wallet, nil
		}
	}
	// Unreachable while total equals the sum of weights
	return wallets[len(wallets)-1], nil
}
