package services

import (
	"context"
	"testing"
	"time"

	"raffler/domain/entities"
	"raffler/domain/interfaces"
	"raffler/domain/testhelpers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testTolerance = 0.01

func liveRaffle(id int64, slug string, price float64, currency entities.Currency) *entities.Raffle {
	return &entities.Raffle{
		ID:          id,
		Slug:        slug,
		Title:       slug,
		TicketPrice: price,
		Currency:    currency,
		StartTime:   time.Now().UTC().Add(-24 * time.Hour),
		EndTime:     time.Now().UTC().Add(24 * time.Hour),
		Status:      entities.RaffleStatusLive,
	}
}

func solPayment(signature, sender string, amount float64) *entities.PaymentFact {
	return &entities.PaymentFact{
		Signature: signature,
		Sender:    sender,
		Amount:    amount,
		Currency:  entities.CurrencySOL,
		Slot:      12345,
	}
}

func newReconciler(raffleRepo *testhelpers.MockRaffleRepository, entryRepo *testhelpers.MockEntryRepository, ledger *testhelpers.MockLedgerReader) interfaces.ReconciliationService {
	return NewReconciliationService(raffleRepo, entryRepo, ledger, testTolerance)
}

func TestReconcile_SignatureAlreadyAttached(t *testing.T) {
	ctx := context.Background()
	raffleRepo := new(testhelpers.MockRaffleRepository)
	entryRepo := new(testhelpers.MockEntryRepository)
	ledger := new(testhelpers.MockLedgerReader)
	svc := newReconciler(raffleRepo, entryRepo, ledger)

	sig := "sig-known"
	entry := &entities.Entry{ID: 7, RaffleID: 1, TransactionSignature: &sig, Status: entities.EntryStatusPending}
	raffle := liveRaffle(1, "weekly-sol", 1.0, entities.CurrencySOL)

	entryRepo.On("GetByTransactionSignature", ctx, sig).Return(entry, nil)
	raffleRepo.On("GetByID", ctx, int64(1)).Return(raffle, nil)

	rec, err := svc.Reconcile(ctx, sig, "")
	require.NoError(t, err)
	assert.Equal(t, entry, rec.Entry)
	assert.Equal(t, raffle, rec.Raffle)
	assert.False(t, rec.Restored)

	// No ledger round trip when the signature is already resolved
	ledger.AssertNotCalled(t, "FetchPayment", mock.Anything, mock.Anything)
}

func TestReconcile_CreatesEntryWithExplicitSlug(t *testing.T) {
	ctx := context.Background()
	raffleRepo := new(testhelpers.MockRaffleRepository)
	entryRepo := new(testhelpers.MockEntryRepository)
	ledger := new(testhelpers.MockLedgerReader)
	svc := newReconciler(raffleRepo, entryRepo, ledger)

	raffle := liveRaffle(1, "weekly-sol", 1.0, entities.CurrencySOL)
	fact := solPayment("sig-new", "SenderWa11et", 3.0)

	entryRepo.On("GetByTransactionSignature", ctx, "sig-new").Return(nil, nil)
	ledger.On("FetchPayment", ctx, "sig-new").Return(fact, nil)
	raffleRepo.On("GetBySlug", ctx, "weekly-sol").Return(raffle, nil)
	entryRepo.On("ListByRaffle", ctx, int64(1)).Return([]*entities.Entry{}, nil)
	entryRepo.On("Create", ctx, mock.MatchedBy(func(e *entities.Entry) bool {
		return e.RaffleID == 1 &&
			e.WalletAddress == "SenderWa11et" &&
			e.TicketQuantity == 3 &&
			e.Status == entities.EntryStatusPending &&
			e.TransactionSignature != nil && *e.TransactionSignature == "sig-new"
	})).Return(nil)

	rec, err := svc.Reconcile(ctx, "sig-new", "weekly-sol")
	require.NoError(t, err)
	assert.True(t, rec.Restored)
	assert.Equal(t, 3, rec.Entry.TicketQuantity)
	entryRepo.AssertExpectations(t)
}

func TestReconcile_AttachesToMatchingPendingEntry(t *testing.T) {
	ctx := context.Background()
	raffleRepo := new(testhelpers.MockRaffleRepository)
	entryRepo := new(testhelpers.MockEntryRepository)
	ledger := new(testhelpers.MockLedgerReader)
	svc := newReconciler(raffleRepo, entryRepo, ledger)

	raffle := liveRaffle(1, "weekly-sol", 1.0, entities.CurrencySOL)
	fact := solPayment("sig-match", "SenderWa11et", 2.0)
	pending := &entities.Entry{
		ID:             9,
		RaffleID:       1,
		WalletAddress:  "SenderWa11et",
		TicketQuantity: 2,
		AmountPaid:     2.0,
		Currency:       entities.CurrencySOL,
		Status:         entities.EntryStatusPending,
	}
	sig := "sig-match"
	attached := *pending
	attached.TransactionSignature = &sig

	entryRepo.On("GetByTransactionSignature", ctx, "sig-match").Return(nil, nil)
	ledger.On("FetchPayment", ctx, "sig-match").Return(fact, nil)
	raffleRepo.On("GetBySlug", ctx, "weekly-sol").Return(raffle, nil)
	entryRepo.On("ListByRaffle", ctx, int64(1)).Return([]*entities.Entry{pending}, nil)
	entryRepo.On("AttachSignature", ctx, int64(9), "sig-match").Return(nil)
	entryRepo.On("GetByID", ctx, int64(9)).Return(&attached, nil)

	rec, err := svc.Reconcile(ctx, "sig-match", "weekly-sol")
	require.NoError(t, err)
	assert.True(t, rec.Restored)
	assert.Equal(t, int64(9), rec.Entry.ID)
	entryRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestReconcile_SecondPaymentSameWalletCreatesNewEntry(t *testing.T) {
	ctx := context.Background()
	raffleRepo := new(testhelpers.MockRaffleRepository)
	entryRepo := new(testhelpers.MockEntryRepository)
	ledger := new(testhelpers.MockLedgerReader)
	svc := newReconciler(raffleRepo, entryRepo, ledger)

	raffle := liveRaffle(1, "weekly-sol", 1.0, entities.CurrencySOL)
	fact := solPayment("sig-new", "SenderWa11et", 2.0)
	// An earlier payment from the same wallet and amount is still settling
	oldSig := "sig-old"
	settling := &entities.Entry{
		ID:                   9,
		RaffleID:             1,
		WalletAddress:        "SenderWa11et",
		TicketQuantity:       2,
		AmountPaid:           2.0,
		Currency:             entities.CurrencySOL,
		TransactionSignature: &oldSig,
		Status:               entities.EntryStatusPending,
	}

	entryRepo.On("GetByTransactionSignature", ctx, "sig-new").Return(nil, nil)
	ledger.On("FetchPayment", ctx, "sig-new").Return(fact, nil)
	raffleRepo.On("GetBySlug", ctx, "weekly-sol").Return(raffle, nil)
	entryRepo.On("ListByRaffle", ctx, int64(1)).Return([]*entities.Entry{settling}, nil)
	entryRepo.On("Create", ctx, mock.MatchedBy(func(e *entities.Entry) bool {
		return e.RaffleID == 1 &&
			e.WalletAddress == "SenderWa11et" &&
			e.TransactionSignature != nil && *e.TransactionSignature == "sig-new"
	})).Return(nil)

	rec, err := svc.Reconcile(ctx, "sig-new", "weekly-sol")
	require.NoError(t, err)
	assert.True(t, rec.Restored)
	require.NotNil(t, rec.Entry.TransactionSignature)
	assert.Equal(t, "sig-new", *rec.Entry.TransactionSignature)

	// The settling entry keeps its own signature
	entryRepo.AssertNotCalled(t, "AttachSignature", mock.Anything, mock.Anything, mock.Anything)
	entryRepo.AssertExpectations(t)
}

func TestReconcile_DuplicateSignatureRetriesAsRead(t *testing.T) {
	ctx := context.Background()
	raffleRepo := new(testhelpers.MockRaffleRepository)
	entryRepo := new(testhelpers.MockEntryRepository)
	ledger := new(testhelpers.MockLedgerReader)
	svc := newReconciler(raffleRepo, entryRepo, ledger)

	raffle := liveRaffle(1, "weekly-sol", 1.0, entities.CurrencySOL)
	fact := solPayment("sig-race", "SenderWa11et", 1.0)
	sig := "sig-race"
	winner := &entities.Entry{ID: 11, RaffleID: 1, TransactionSignature: &sig, Status: entities.EntryStatusPending}

	entryRepo.On("GetByTransactionSignature", ctx, "sig-race").Return(nil, nil).Once()
	ledger.On("FetchPayment", ctx, "sig-race").Return(fact, nil)
	raffleRepo.On("GetBySlug", ctx, "weekly-sol").Return(raffle, nil)
	entryRepo.On("ListByRaffle", ctx, int64(1)).Return([]*entities.Entry{}, nil)
	// A concurrent reconciliation inserted the row between our read and write
	entryRepo.On("Create", ctx, mock.Anything).Return(interfaces.ErrDuplicateSignature)
	entryRepo.On("GetByTransactionSignature", ctx, "sig-race").Return(winner, nil).Once()

	rec, err := svc.Reconcile(ctx, "sig-race", "weekly-sol")
	require.NoError(t, err)
	assert.Equal(t, int64(11), rec.Entry.ID)
}

func TestReconcile_CrossRaffleSignatureReuse(t *testing.T) {
	ctx := context.Background()
	raffleRepo := new(testhelpers.MockRaffleRepository)
	entryRepo := new(testhelpers.MockEntryRepository)
	ledger := new(testhelpers.MockLedgerReader)
	svc := newReconciler(raffleRepo, entryRepo, ledger)

	raffle := liveRaffle(1, "weekly-sol", 1.0, entities.CurrencySOL)
	fact := solPayment("sig-reused", "SenderWa11et", 1.0)
	sig := "sig-reused"
	// The signature already belongs to an entry in a different raffle
	foreign := &entities.Entry{ID: 21, RaffleID: 2, TransactionSignature: &sig, Status: entities.EntryStatusConfirmed}

	entryRepo.On("GetByTransactionSignature", ctx, "sig-reused").Return(nil, nil).Once()
	ledger.On("FetchPayment", ctx, "sig-reused").Return(fact, nil)
	raffleRepo.On("GetBySlug", ctx, "weekly-sol").Return(raffle, nil)
	entryRepo.On("ListByRaffle", ctx, int64(1)).Return([]*entities.Entry{}, nil)
	entryRepo.On("Create", ctx, mock.Anything).Return(interfaces.ErrDuplicateSignature)
	entryRepo.On("GetByTransactionSignature", ctx, "sig-reused").Return(foreign, nil).Once()

	_, err := svc.Reconcile(ctx, "sig-reused", "weekly-sol")
	require.Error(t, err)
	var verr *entities.VerificationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, entities.ErrorKindMismatch, verr.Kind)
}

func TestReconcile_AmountNotMultiple(t *testing.T) {
	ctx := context.Background()
	raffleRepo := new(testhelpers.MockRaffleRepository)
	entryRepo := new(testhelpers.MockEntryRepository)
	ledger := new(testhelpers.MockLedgerReader)
	svc := newReconciler(raffleRepo, entryRepo, ledger)

	raffle := liveRaffle(1, "weekly-sol", 1.0, entities.CurrencySOL)
	fact := solPayment("sig-partial", "SenderWa11et", 2.5)

	entryRepo.On("GetByTransactionSignature", ctx, "sig-partial").Return(nil, nil)
	ledger.On("FetchPayment", ctx, "sig-partial").Return(fact, nil)
	raffleRepo.On("GetBySlug", ctx, "weekly-sol").Return(raffle, nil)

	_, err := svc.Reconcile(ctx, "sig-partial", "weekly-sol")
	require.Error(t, err)
	var verr *entities.VerificationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, entities.ErrorKindMismatch, verr.Kind)
	entryRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestReconcile_CurrencyMismatch(t *testing.T) {
	ctx := context.Background()
	raffleRepo := new(testhelpers.MockRaffleRepository)
	entryRepo := new(testhelpers.MockEntryRepository)
	ledger := new(testhelpers.MockLedgerReader)
	svc := newReconciler(raffleRepo, entryRepo, ledger)

	raffle := liveRaffle(1, "usdc-raffle", 5.0, entities.CurrencyUSDC)
	fact := solPayment("sig-wrong-currency", "SenderWa11et", 5.0)

	entryRepo.On("GetByTransactionSignature", ctx, "sig-wrong-currency").Return(nil, nil)
	ledger.On("FetchPayment", ctx, "sig-wrong-currency").Return(fact, nil)
	raffleRepo.On("GetBySlug", ctx, "usdc-raffle").Return(raffle, nil)

	_, err := svc.Reconcile(ctx, "sig-wrong-currency", "usdc-raffle")
	var verr *entities.VerificationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, entities.ErrorKindMismatch, verr.Kind)
}

func TestReconcile_AutoResolvesSingleCandidate(t *testing.T) {
	ctx := context.Background()
	raffleRepo := new(testhelpers.MockRaffleRepository)
	entryRepo := new(testhelpers.MockEntryRepository)
	ledger := new(testhelpers.MockLedgerReader)
	svc := newReconciler(raffleRepo, entryRepo, ledger)

	// Price 1.0 fits the 2.0 payment; price 3.0 does not
	raffleA := liveRaffle(1, "raffle-a", 1.0, entities.CurrencySOL)
	raffleB := liveRaffle(2, "raffle-b", 3.0, entities.CurrencySOL)
	fact := solPayment("sig-auto", "SenderWa11et", 2.0)

	entryRepo.On("GetByTransactionSignature", ctx, "sig-auto").Return(nil, nil)
	ledger.On("FetchPayment", ctx, "sig-auto").Return(fact, nil)
	raffleRepo.On("ListNonDraft", ctx).Return([]*entities.Raffle{raffleA, raffleB}, nil)
	entryRepo.On("ListByRaffle", ctx, int64(1)).Return([]*entities.Entry{}, nil)
	raffleRepo.On("GetByID", ctx, int64(1)).Return(raffleA, nil)
	entryRepo.On("Create", ctx, mock.MatchedBy(func(e *entities.Entry) bool {
		return e.RaffleID == 1 && e.TicketQuantity == 2
	})).Return(nil)

	rec, err := svc.Reconcile(ctx, "sig-auto", "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.Entry.RaffleID)
}

func TestReconcile_AmbiguousAcrossRaffles(t *testing.T) {
	ctx := context.Background()
	raffleRepo := new(testhelpers.MockRaffleRepository)
	entryRepo := new(testhelpers.MockEntryRepository)
	ledger := new(testhelpers.MockLedgerReader)
	svc := newReconciler(raffleRepo, entryRepo, ledger)

	// 2.0 SOL is a whole multiple for both prices
	raffleA := liveRaffle(1, "raffle-a", 1.0, entities.CurrencySOL)
	raffleB := liveRaffle(2, "raffle-b", 2.0, entities.CurrencySOL)
	fact := solPayment("sig-ambiguous", "SenderWa11et", 2.0)

	entryRepo.On("GetByTransactionSignature", ctx, "sig-ambiguous").Return(nil, nil)
	ledger.On("FetchPayment", ctx, "sig-ambiguous").Return(fact, nil)
	raffleRepo.On("ListNonDraft", ctx).Return([]*entities.Raffle{raffleA, raffleB}, nil)
	entryRepo.On("ListByRaffle", ctx, int64(1)).Return([]*entities.Entry{}, nil)
	// Raffle B has a pending entry with the exact amount, so it ranks higher
	entryRepo.On("ListByRaffle", ctx, int64(2)).Return([]*entities.Entry{
		{
			RaffleID:      2,
			WalletAddress: "SenderWa11et",
			AmountPaid:    2.0,
			Currency:      entities.CurrencySOL,
			Status:        entities.EntryStatusPending,
		},
	}, nil)

	_, err := svc.Reconcile(ctx, "sig-ambiguous", "")
	require.Error(t, err)
	var verr *entities.VerificationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, entities.ErrorKindAmbiguous, verr.Kind)
	require.Len(t, verr.Candidates, 2)
	assert.Equal(t, "raffle-b", verr.Candidates[0].Slug)
	assert.Equal(t, 1.0, verr.Candidates[0].Confidence)
	assert.Equal(t, "raffle-a", verr.Candidates[1].Slug)
	assert.Equal(t, 0.8, verr.Candidates[1].Confidence)

	entryRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestReconcile_NoCandidates(t *testing.T) {
	ctx := context.Background()
	raffleRepo := new(testhelpers.MockRaffleRepository)
	entryRepo := new(testhelpers.MockEntryRepository)
	ledger := new(testhelpers.MockLedgerReader)
	svc := newReconciler(raffleRepo, entryRepo, ledger)

	raffle := liveRaffle(1, "usdc-only", 5.0, entities.CurrencyUSDC)
	fact := solPayment("sig-orphan", "SenderWa11et", 2.0)

	entryRepo.On("GetByTransactionSignature", ctx, "sig-orphan").Return(nil, nil)
	ledger.On("FetchPayment", ctx, "sig-orphan").Return(fact, nil)
	raffleRepo.On("ListNonDraft", ctx).Return([]*entities.Raffle{raffle}, nil)

	_, err := svc.Reconcile(ctx, "sig-orphan", "")
	var verr *entities.VerificationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, entities.ErrorKindAmbiguous, verr.Kind)
	assert.Empty(t, verr.Candidates)
}

func TestReconcile_UnknownSlug(t *testing.T) {
	ctx := context.Background()
	raffleRepo := new(testhelpers.MockRaffleRepository)
	entryRepo := new(testhelpers.MockEntryRepository)
	ledger := new(testhelpers.MockLedgerReader)
	svc := newReconciler(raffleRepo, entryRepo, ledger)

	fact := solPayment("sig-noslug", "SenderWa11et", 1.0)

	entryRepo.On("GetByTransactionSignature", ctx, "sig-noslug").Return(nil, nil)
	ledger.On("FetchPayment", ctx, "sig-noslug").Return(fact, nil)
	raffleRepo.On("GetBySlug", ctx, "missing").Return(nil, nil)

	_, err := svc.Reconcile(ctx, "sig-noslug", "missing")
	var verr *entities.VerificationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, entities.ErrorKindMismatch, verr.Kind)
}

func TestReconcile_LedgerErrorPropagates(t *testing.T) {
	ctx := context.Background()
	raffleRepo := new(testhelpers.MockRaffleRepository)
	entryRepo := new(testhelpers.MockEntryRepository)
	ledger := new(testhelpers.MockLedgerReader)
	svc := newReconciler(raffleRepo, entryRepo, ledger)

	entryRepo.On("GetByTransactionSignature", ctx, "sig-missing").Return(nil, nil)
	ledger.On("FetchPayment", ctx, "sig-missing").Return(nil, &entities.VerificationError{
		Kind:    entities.ErrorKindNotFound,
		Message: "transaction not found",
	})

	_, err := svc.Reconcile(ctx, "sig-missing", "any-slug")
	var verr *entities.VerificationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, entities.ErrorKindNotFound, verr.Kind)
	assert.True(t, verr.IsRetryable())
}
