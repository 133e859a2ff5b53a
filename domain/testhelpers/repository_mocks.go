package testhelpers

import (
	"context"
	"time"

	"raffler/domain/entities"
	"raffler/domain/events"
	"raffler/domain/interfaces"

	"github.com/stretchr/testify/mock"
)

// MockRaffleRepository is a mock implementation of RaffleRepository
type MockRaffleRepository struct {
	mock.Mock
}

func (m *MockRaffleRepository) GetByID(ctx context.Context, id int64) (*entities.Raffle, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Raffle), args.Error(1)
}

func (m *MockRaffleRepository) GetBySlug(ctx context.Context, slug string) (*entities.Raffle, error) {
	args := m.Called(ctx, slug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Raffle), args.Error(1)
}

func (m *MockRaffleRepository) ListNonDraft(ctx context.Context) ([]*entities.Raffle, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Raffle), args.Error(1)
}

func (m *MockRaffleRepository) ListEndedWithoutWinner(ctx context.Context, before time.Time) ([]*entities.Raffle, error) {
	args := m.Called(ctx, before)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Raffle), args.Error(1)
}

func (m *MockRaffleRepository) Create(ctx context.Context, raffle *entities.Raffle) error {
	args := m.Called(ctx, raffle)
	return args.Error(0)
}

func (m *MockRaffleRepository) UpdateStatus(ctx context.Context, id int64, status entities.RaffleStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockRaffleRepository) PromoteScheduled(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRaffleRepository) SetWinner(ctx context.Context, id int64, wallet string, at time.Time) (bool, error) {
	args := m.Called(ctx, id, wallet, at)
	return args.Bool(0), args.Error(1)
}

func (m *MockRaffleRepository) UpdateEndTime(ctx context.Context, id int64, newEnd time.Time, originalEnd *time.Time) error {
	args := m.Called(ctx, id, newEnd, originalEnd)
	return args.Error(0)
}

// MockEntryRepository is a mock implementation of EntryRepository
type MockEntryRepository struct {
	mock.Mock
}

func (m *MockEntryRepository) GetByID(ctx context.Context, id int64) (*entities.Entry, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Entry), args.Error(1)
}

func (m *MockEntryRepository) GetByTransactionSignature(ctx context.Context, signature string) (*entities.Entry, error) {
	args := m.Called(ctx, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Entry), args.Error(1)
}

func (m *MockEntryRepository) Create(ctx context.Context, entry *entities.Entry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockEntryRepository) ListByRaffle(ctx context.Context, raffleID int64) ([]*entities.Entry, error) {
	args := m.Called(ctx, raffleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Entry), args.Error(1)
}

func (m *MockEntryRepository) SumConfirmedTickets(ctx context.Context, raffleID int64, excludeEntryID int64) (int, error) {
	args := m.Called(ctx, raffleID, excludeEntryID)
	return args.Int(0), args.Error(1)
}

func (m *MockEntryRepository) AttachSignature(ctx context.Context, id int64, signature string) error {
	args := m.Called(ctx, id, signature)
	return args.Error(0)
}

func (m *MockEntryRepository) Confirm(ctx context.Context, id int64, maxTickets *int, at time.Time) (interfaces.ConfirmOutcome, error) {
	args := m.Called(ctx, id, maxTickets, at)
	return args.Get(0).(interfaces.ConfirmOutcome), args.Error(1)
}

func (m *MockEntryRepository) Reject(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockEntryRepository) MarkRestored(ctx context.Context, id int64, by *string, at time.Time) error {
	args := m.Called(ctx, id, by, at)
	return args.Error(0)
}

// MockLedgerReader is a mock implementation of LedgerReader
type MockLedgerReader struct {
	mock.Mock
}

func (m *MockLedgerReader) FetchPayment(ctx context.Context, signature string) (*entities.PaymentFact, error) {
	args := m.Called(ctx, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.PaymentFact), args.Error(1)
}

func (m *MockLedgerReader) VerifyPayment(ctx context.Context, signature string, amount float64, currency entities.Currency) error {
	args := m.Called(ctx, signature, amount, currency)
	return args.Error(0)
}

// MockReconciliationService is a mock implementation of ReconciliationService
type MockReconciliationService struct {
	mock.Mock
}

func (m *MockReconciliationService) Reconcile(ctx context.Context, signature, raffleSlug string) (*interfaces.Reconciliation, error) {
	args := m.Called(ctx, signature, raffleSlug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.Reconciliation), args.Error(1)
}

// MockEventPublisher is a mock implementation of EventPublisher
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(event events.Event) error {
	args := m.Called(event)
	return args.Error(0)
}
