package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"raffler/domain/entities"
	"raffler/domain/interfaces"

	log "github.com/sirupsen/logrus"
)

// exactAmountTolerance is the tighter tolerance under which an existing
// entry's amount counts as an exact match for candidate ranking.
const exactAmountTolerance = 0.001

// reconciliationService resolves unmatched transaction signatures to entries
type reconciliationService struct {
	raffleRepo interfaces.RaffleRepository
	entryRepo  interfaces.EntryRepository
	ledger     interfaces.LedgerReader
	tolerance  float64
}

// NewReconciliationService creates a new reconciliation service. tolerance
// is the absolute amount-matching tolerance in UI units.
func NewReconciliationService(
	raffleRepo interfaces.RaffleRepository,
	entryRepo interfaces.EntryRepository,
	ledger interfaces.LedgerReader,
	tolerance float64,
) interfaces.ReconciliationService {
	return &reconciliationService{
		raffleRepo: raffleRepo,
		entryRepo:  entryRepo,
		ledger:     ledger,
		tolerance:  tolerance,
	}
}

// Reconcile finds or creates the one entry a payment settles
func (s *reconciliationService) Reconcile(ctx context.Context, signature, raffleSlug string) (*interfaces.Reconciliation, error) {
	// Fast path: the signature is already tied to an entry
	existing, err := s.entryRepo.GetByTransactionSignature(ctx, signature)
	if err != nil {
		return nil, fmt.Errorf("failed to look up entry by signature: %w", err)
	}
	if existing != nil {
		raffle, err := s.raffleRepo.GetByID(ctx, existing.RaffleID)
		if err != nil {
			return nil, fmt.Errorf("failed to load raffle %d: %w", existing.RaffleID, err)
		}
		if raffle == nil {
			return nil, fmt.Errorf("entry %d references missing raffle %d", existing.ID, existing.RaffleID)
		}
		return &interfaces.Reconciliation{Entry: existing, Raffle: raffle, Restored: false}, nil
	}

	fact, err := s.ledger.FetchPayment(ctx, signature)
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"signature": signature,
		"sender":    fact.Sender,
		"amount":    fact.Amount,
		"currency":  fact.Currency,
	}).Info("reconciling unmatched payment")

	if raffleSlug != "" {
		raffle, err := s.raffleRepo.GetBySlug(ctx, raffleSlug)
		if err != nil {
			return nil, fmt.Errorf("failed to load raffle %q: %w", raffleSlug, err)
		}
		if raffle == nil {
			return nil, &entities.VerificationError{
				Kind:       entities.ErrorKindMismatch,
				Message:    fmt.Sprintf("raffle %q does not exist", raffleSlug),
				Suggestion: "check the raffle slug",
				Payment:    fact,
			}
		}
		if err := s.paymentFitsRaffle(fact, raffle); err != nil {
			return nil, err
		}
		return s.resolveForRaffle(ctx, raffle, fact)
	}

	return s.resolveAcrossRaffles(ctx, fact)
}

// paymentFitsRaffle applies the currency and amount-multiple gates
func (s *reconciliationService) paymentFitsRaffle(fact *entities.PaymentFact, raffle *entities.Raffle) error {
	if !raffle.IsOpenForEntries() {
		return &entities.VerificationError{
			Kind:    entities.ErrorKindMismatch,
			Message: fmt.Sprintf("raffle %q is not accepting entries", raffle.Slug),
			Payment: fact,
		}
	}
	if fact.Currency != raffle.Currency {
		return &entities.VerificationError{
			Kind:    entities.ErrorKindMismatch,
			Message: fmt.Sprintf("payment is in %s but raffle %q is priced in %s", fact.Currency, raffle.Slug, raffle.Currency),
			Payment: fact,
		}
	}
	if !fact.IsExactMultiple(raffle.TicketPrice, s.tolerance) {
		return &entities.VerificationError{
			Kind:       entities.ErrorKindMismatch,
			Message:    fmt.Sprintf("payment of %g %s is not a whole multiple of the %g %s ticket price", fact.Amount, fact.Currency, raffle.TicketPrice, raffle.Currency),
			Suggestion: "the payment must cover an exact number of tickets",
			Payment:    fact,
		}
	}
	return nil
}

// resolveForRaffle finds or creates the entry for a payment within one
// raffle. The caller has already applied paymentFitsRaffle.
func (s *reconciliationService) resolveForRaffle(ctx context.Context, raffle *entities.Raffle, fact *entities.PaymentFact) (*interfaces.Reconciliation, error) {
	entries, err := s.entryRepo.ListByRaffle(ctx, raffle.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries for raffle %d: %w", raffle.ID, err)
	}

	for _, entry := range entries {
		if !entry.MatchesPayment(fact.Sender, fact.Amount, fact.Currency, s.tolerance) {
			continue
		}
		return s.attachToEntry(ctx, raffle, entry, fact)
	}

	return s.createEntry(ctx, raffle, fact)
}

// attachToEntry attaches the signature to an existing unsettled entry,
// falling back to the row that won when a concurrent reconciliation attached
// the same signature first.
func (s *reconciliationService) attachToEntry(ctx context.Context, raffle *entities.Raffle, entry *entities.Entry, fact *entities.PaymentFact) (*interfaces.Reconciliation, error) {
	err := s.entryRepo.AttachSignature(ctx, entry.ID, fact.Signature)
	if err != nil && !errors.Is(err, interfaces.ErrDuplicateSignature) {
		return nil, fmt.Errorf("failed to attach signature to entry %d: %w", entry.ID, err)
	}

	if errors.Is(err, interfaces.ErrDuplicateSignature) {
		return s.readAuthoritative(ctx, raffle, fact)
	}

	updated, err := s.entryRepo.GetByID(ctx, entry.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to re-read entry %d: %w", entry.ID, err)
	}
	if updated == nil || !updated.HasSignature() || *updated.TransactionSignature != fact.Signature {
		// Lost a race: someone attached a different signature to this entry
		// or the same signature landed elsewhere first.
		return s.readAuthoritative(ctx, raffle, fact)
	}

	if err := s.checkRaffleMembership(updated, raffle, fact); err != nil {
		return nil, err
	}
	return &interfaces.Reconciliation{Entry: updated, Raffle: raffle, Payment: fact, Restored: true}, nil
}

// createEntry lazily creates the entry a previously unseen payment settles
func (s *reconciliationService) createEntry(ctx context.Context, raffle *entities.Raffle, fact *entities.PaymentFact) (*interfaces.Reconciliation, error) {
	sig := fact.Signature
	entry := &entities.Entry{
		RaffleID:             raffle.ID,
		WalletAddress:        fact.Sender,
		TicketQuantity:       fact.TicketQuantity(raffle.TicketPrice),
		AmountPaid:           fact.Amount,
		Currency:             fact.Currency,
		TransactionSignature: &sig,
		Status:               entities.EntryStatusPending,
	}

	err := s.entryRepo.Create(ctx, entry)
	if errors.Is(err, interfaces.ErrDuplicateSignature) {
		// A concurrent reconciliation created the row first; its write is
		// authoritative.
		return s.readAuthoritative(ctx, raffle, fact)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create entry for raffle %d: %w", raffle.ID, err)
	}

	log.WithFields(log.Fields{
		"raffle":  raffle.Slug,
		"entryID": entry.ID,
		"wallet":  fact.Sender,
		"tickets": entry.TicketQuantity,
	}).Info("created entry from reconciled payment")

	return &interfaces.Reconciliation{Entry: entry, Raffle: raffle, Payment: fact, Restored: true}, nil
}

// readAuthoritative re-reads by signature after losing a duplicate-signature
// race and validates raffle membership on the winning row.
func (s *reconciliationService) readAuthoritative(ctx context.Context, raffle *entities.Raffle, fact *entities.PaymentFact) (*interfaces.Reconciliation, error) {
	winner, err := s.entryRepo.GetByTransactionSignature(ctx, fact.Signature)
	if err != nil {
		return nil, fmt.Errorf("failed to re-read entry by signature: %w", err)
	}
	if winner == nil {
		return nil, fmt.Errorf("signature conflict for %s but no entry holds it", fact.Signature)
	}
	if err := s.checkRaffleMembership(winner, raffle, fact); err != nil {
		return nil, err
	}
	return &interfaces.Reconciliation{Entry: winner, Raffle: raffle, Payment: fact, Restored: true}, nil
}

// checkRaffleMembership enforces that the resolved entry belongs to the
// resolved raffle, preventing cross-raffle signature reuse.
func (s *reconciliationService) checkRaffleMembership(entry *entities.Entry, raffle *entities.Raffle, fact *entities.PaymentFact) error {
	if entry.RaffleID != raffle.ID {
		return &entities.VerificationError{
			Kind:    entities.ErrorKindMismatch,
			Message: fmt.Sprintf("transaction is already tied to an entry in a different raffle (entry %d)", entry.ID),
			Payment: fact,
		}
	}
	return nil
}

// resolveAcrossRaffles scans all non-draft raffles for ones the payment
// could settle. Exactly one match auto-resolves; anything else is returned
// to the caller, which must never guess between raffles.
func (s *reconciliationService) resolveAcrossRaffles(ctx context.Context, fact *entities.PaymentFact) (*interfaces.Reconciliation, error) {
	raffles, err := s.raffleRepo.ListNonDraft(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list raffles: %w", err)
	}

	var candidates []entities.Candidate
	for _, raffle := range raffles {
		if s.paymentFitsRaffle(fact, raffle) != nil {
			continue
		}

		confidence := 0.8
		entries, err := s.entryRepo.ListByRaffle(ctx, raffle.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list entries for raffle %d: %w", raffle.ID, err)
		}
		for _, entry := range entries {
			if entry.MatchesPayment(fact.Sender, fact.Amount, fact.Currency, s.tolerance) &&
				math.Abs(entry.AmountPaid-fact.Amount) < exactAmountTolerance {
				confidence = 1.0
				break
			}
		}

		candidates = append(candidates, entities.Candidate{
			RaffleID:    raffle.ID,
			Slug:        raffle.Slug,
			Title:       raffle.Title,
			TicketPrice: raffle.TicketPrice,
			Currency:    raffle.Currency,
			Confidence:  confidence,
		})
	}

	switch len(candidates) {
	case 0:
		return nil, &entities.VerificationError{
			Kind:       entities.ErrorKindAmbiguous,
			Message:    "no running raffle matches this payment",
			Suggestion: "retry with an explicit raffle slug",
			Payment:    fact,
		}
	case 1:
		raffle, err := s.raffleRepo.GetByID(ctx, candidates[0].RaffleID)
		if err != nil {
			return nil, fmt.Errorf("failed to load raffle %d: %w", candidates[0].RaffleID, err)
		}
		return s.resolveForRaffle(ctx, raffle, fact)
	default:
		sort.Slice(candidates, func(i, j int) bool {
			if candidates[i].Confidence != candidates[j].Confidence {
				return candidates[i].Confidence > candidates[j].Confidence
			}
			return candidates[i].Slug < candidates[j].Slug
		})
		return nil, &entities.VerificationError{
			Kind:       entities.ErrorKindAmbiguous,
			Message:    fmt.Sprintf("payment matches %d raffles", len(candidates)),
			Suggestion: "retry with the raffle slug the payment was meant for",
			Candidates: candidates,
			Payment:    fact,
		}
	}
}
