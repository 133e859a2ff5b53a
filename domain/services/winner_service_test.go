package services

import (
	"context"
	"testing"
	"time"

	"raffler/domain/entities"
	"raffler/domain/events"
	"raffler/domain/testhelpers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func intPtr(i int) *int               { return &i }
func strPtr(s string) *string         { return &s }
func timePtr(tm time.Time) *time.Time { return &tm }

func confirmedEntry(raffleID int64, wallet string, tickets int) *entities.Entry {
	return &entities.Entry{
		RaffleID:       raffleID,
		WalletAddress:  wallet,
		TicketQuantity: tickets,
		Status:         entities.EntryStatusConfirmed,
	}
}

func TestTicketsByWallet(t *testing.T) {
	entries := []*entities.Entry{
		confirmedEntry(1, "walletA", 2),
		confirmedEntry(1, "walletA", 3),
		confirmedEntry(1, "walletB", 1),
		{RaffleID: 1, WalletAddress: "walletC", TicketQuantity: 10, Status: entities.EntryStatusPending},
		{RaffleID: 1, WalletAddress: "walletD", TicketQuantity: 5, Status: entities.EntryStatusRejected},
	}

	tickets := TicketsByWallet(entries)
	assert.Equal(t, map[string]int{"walletA": 5, "walletB": 1}, tickets)
}

func TestPickWeightedWinner_Proportions(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping statistical test in short mode")
	}

	tickets := map[string]int{"walletA": 10, "walletB": 30, "walletC": 60}

	const draws = 100000
	wins := map[string]int{}
	for i := 0; i < draws; i++ {
		winner, err := PickWeightedWinner(tickets)
		require.NoError(t, err)
		wins[winner]++
	}

	// Expected win rates are 0.10 / 0.30 / 0.60. With 100k draws the
	// standard error is well under 0.005, so a 0.02 band is comfortable.
	assert.InDelta(t, 0.10, float64(wins["walletA"])/draws, 0.02)
	assert.InDelta(t, 0.30, float64(wins["walletB"])/draws, 0.02)
	assert.InDelta(t, 0.60, float64(wins["walletC"])/draws, 0.02)
}

func TestPickWeightedWinner_SingleWallet(t *testing.T) {
	winner, err := PickWeightedWinner(map[string]int{"onlyWallet": 7})
	require.NoError(t, err)
	assert.Equal(t, "onlyWallet", winner)
}

func TestPickWeightedWinner_NoTickets(t *testing.T) {
	_, err := PickWeightedWinner(map[string]int{})
	assert.Error(t, err)

	_, err = PickWeightedWinner(map[string]int{"walletA": 0})
	assert.Error(t, err)
}

func TestSelectWinner_CommitsAndPublishes(t *testing.T) {
	ctx := context.Background()
	raffleRepo := new(testhelpers.MockRaffleRepository)
	entryRepo := new(testhelpers.MockEntryRepository)
	publisher := new(testhelpers.MockEventPublisher)
	svc := NewWinnerService(raffleRepo, entryRepo, publisher)

	raffle := &entities.Raffle{
		ID:      1,
		Slug:    "weekly-sol",
		EndTime: time.Now().UTC().Add(-time.Hour),
		Status:  entities.RaffleStatusReadyToDraw,
	}
	raffleRepo.On("GetByID", ctx, int64(1)).Return(raffle, nil)
	entryRepo.On("ListByRaffle", ctx, int64(1)).Return([]*entities.Entry{
		confirmedEntry(1, "walletA", 4),
	}, nil)
	raffleRepo.On("SetWinner", ctx, int64(1), "walletA", mock.AnythingOfType("time.Time")).Return(true, nil)
	publisher.On("Publish", mock.AnythingOfType("events.WinnerSelectedEvent")).Return(nil)

	result, err := svc.SelectWinner(ctx, 1, false)
	require.NoError(t, err)
	assert.Equal(t, "walletA", result.WinnerWallet)
	assert.Equal(t, 4, result.TicketsHeld)
	assert.Equal(t, 4, result.TotalTickets)
	assert.False(t, result.AlreadyDrawn)

	raffleRepo.AssertExpectations(t)
	publisher.AssertCalled(t, "Publish", mock.MatchedBy(func(e events.WinnerSelectedEvent) bool {
		return e.WinnerWallet == "walletA" && e.RaffleSlug == "weekly-sol"
	}))
}

func TestSelectWinner_AlreadyDrawn(t *testing.T) {
	ctx := context.Background()
	raffleRepo := new(testhelpers.MockRaffleRepository)
	entryRepo := new(testhelpers.MockEntryRepository)
	svc := NewWinnerService(raffleRepo, entryRepo, nil)

	selectedAt := time.Now().UTC().Add(-time.Hour)
	raffle := &entities.Raffle{
		ID:               1,
		Slug:             "done",
		EndTime:          selectedAt.Add(-time.Hour),
		Status:           entities.RaffleStatusCompleted,
		WinnerWallet:     strPtr("walletB"),
		WinnerSelectedAt: timePtr(selectedAt),
	}
	raffleRepo.On("GetByID", ctx, int64(1)).Return(raffle, nil)
	entryRepo.On("ListByRaffle", ctx, int64(1)).Return([]*entities.Entry{
		confirmedEntry(1, "walletA", 3),
		confirmedEntry(1, "walletB", 2),
	}, nil)

	result, err := svc.SelectWinner(ctx, 1, false)
	require.NoError(t, err)
	assert.True(t, result.AlreadyDrawn)
	assert.Equal(t, "walletB", result.WinnerWallet)
	assert.Equal(t, 2, result.TicketsHeld)
	assert.Equal(t, selectedAt, result.SelectedAt)

	raffleRepo.AssertNotCalled(t, "SetWinner", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSelectWinner_LostCommitRace(t *testing.T) {
	ctx := context.Background()
	raffleRepo := new(testhelpers.MockRaffleRepository)
	entryRepo := new(testhelpers.MockEntryRepository)
	svc := NewWinnerService(raffleRepo, entryRepo, nil)

	raffle := &entities.Raffle{
		ID:      1,
		Slug:    "contested",
		EndTime: time.Now().UTC().Add(-time.Hour),
		Status:  entities.RaffleStatusReadyToDraw,
	}
	selectedAt := time.Now().UTC()
	committed := &entities.Raffle{
		ID:               1,
		Slug:             "contested",
		EndTime:          raffle.EndTime,
		Status:           entities.RaffleStatusCompleted,
		WinnerWallet:     strPtr("walletA"),
		WinnerSelectedAt: timePtr(selectedAt),
	}

	raffleRepo.On("GetByID", ctx, int64(1)).Return(raffle, nil).Once()
	entryRepo.On("ListByRaffle", ctx, int64(1)).Return([]*entities.Entry{
		confirmedEntry(1, "walletA", 1),
	}, nil)
	// Another draw committed between our read and our write
	raffleRepo.On("SetWinner", ctx, int64(1), "walletA", mock.AnythingOfType("time.Time")).Return(false, nil)
	raffleRepo.On("GetByID", ctx, int64(1)).Return(committed, nil).Once()

	result, err := svc.SelectWinner(ctx, 1, false)
	require.NoError(t, err)
	assert.True(t, result.AlreadyDrawn)
	assert.Equal(t, "walletA", result.WinnerWallet)
}

func TestSelectWinner_NotEligible(t *testing.T) {
	ctx := context.Background()
	raffleRepo := new(testhelpers.MockRaffleRepository)
	entryRepo := new(testhelpers.MockEntryRepository)
	svc := NewWinnerService(raffleRepo, entryRepo, nil)

	raffle := &entities.Raffle{
		ID:         1,
		Slug:       "under-quorum",
		MinTickets: intPtr(50),
		EndTime:    time.Now().UTC().Add(-time.Hour),
		Status:     entities.RaffleStatusLive,
	}
	raffleRepo.On("GetByID", ctx, int64(1)).Return(raffle, nil)
	entryRepo.On("ListByRaffle", ctx, int64(1)).Return([]*entities.Entry{
		confirmedEntry(1, "walletA", 10),
	}, nil)

	_, err := svc.SelectWinner(ctx, 1, false)
	require.Error(t, err)
	var eligErr *entities.EligibilityError
	require.ErrorAs(t, err, &eligErr)
	assert.Equal(t, []entities.EligibilityGate{entities.GateQuorum}, eligErr.FailedGates)

	raffleRepo.AssertNotCalled(t, "SetWinner", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSelectWinner_ForceBypassesGates(t *testing.T) {
	ctx := context.Background()
	raffleRepo := new(testhelpers.MockRaffleRepository)
	entryRepo := new(testhelpers.MockEntryRepository)
	svc := NewWinnerService(raffleRepo, entryRepo, nil)

	raffle := &entities.Raffle{
		ID:         1,
		Slug:       "under-quorum",
		MinTickets: intPtr(50),
		EndTime:    time.Now().UTC().Add(-time.Hour),
		Status:     entities.RaffleStatusLive,
	}
	raffleRepo.On("GetByID", ctx, int64(1)).Return(raffle, nil)
	entryRepo.On("ListByRaffle", ctx, int64(1)).Return([]*entities.Entry{
		confirmedEntry(1, "walletA", 10),
	}, nil)
	raffleRepo.On("SetWinner", ctx, int64(1), "walletA", mock.AnythingOfType("time.Time")).Return(true, nil)

	result, err := svc.SelectWinner(ctx, 1, true)
	require.NoError(t, err)
	assert.Equal(t, "walletA", result.WinnerWallet)
}

func TestSelectWinner_ForceStillNeedsEntries(t *testing.T) {
	ctx := context.Background()
	raffleRepo := new(testhelpers.MockRaffleRepository)
	entryRepo := new(testhelpers.MockEntryRepository)
	svc := NewWinnerService(raffleRepo, entryRepo, nil)

	raffle := &entities.Raffle{
		ID:      1,
		Slug:    "empty",
		EndTime: time.Now().UTC().Add(-time.Hour),
		Status:  entities.RaffleStatusLive,
	}
	raffleRepo.On("GetByID", ctx, int64(1)).Return(raffle, nil)
	entryRepo.On("ListByRaffle", ctx, int64(1)).Return([]*entities.Entry{}, nil)

	_, err := svc.SelectWinner(ctx, 1, true)
	require.Error(t, err)
	raffleRepo.AssertNotCalled(t, "SetWinner", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCheckEligibility(t *testing.T) {
	ctx := context.Background()
	raffleRepo := new(testhelpers.MockRaffleRepository)
	entryRepo := new(testhelpers.MockEntryRepository)
	svc := NewWinnerService(raffleRepo, entryRepo, nil)

	raffle := &entities.Raffle{
		ID:         1,
		Slug:       "quorum",
		MinTickets: intPtr(5),
		EndTime:    time.Now().UTC().Add(-time.Hour),
		Status:     entities.RaffleStatusLive,
	}
	raffleRepo.On("GetByID", ctx, int64(1)).Return(raffle, nil)
	entryRepo.On("SumConfirmedTickets", ctx, int64(1), int64(0)).Return(5, nil)

	elig, err := svc.CheckEligibility(ctx, 1)
	require.NoError(t, err)
	assert.True(t, elig.Eligible)
}
