package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"raffler/domain/entities"
	"raffler/domain/events"
	"raffler/domain/interfaces"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// settlementService re-validates payments and transitions entries
type settlementService struct {
	raffleRepo interfaces.RaffleRepository
	entryRepo  interfaces.EntryRepository
	ledger     interfaces.LedgerReader
	reconciler interfaces.ReconciliationService
	publisher  interfaces.EventPublisher
}

// NewSettlementService creates a new settlement service
func NewSettlementService(
	raffleRepo interfaces.RaffleRepository,
	entryRepo interfaces.EntryRepository,
	ledger interfaces.LedgerReader,
	reconciler interfaces.ReconciliationService,
	publisher interfaces.EventPublisher,
) interfaces.SettlementService {
	return &settlementService{
		raffleRepo: raffleRepo,
		entryRepo:  entryRepo,
		ledger:     ledger,
		reconciler: reconciler,
		publisher:  publisher,
	}
}

// VerifyBySignature resolves the signature via reconciliation and settles
// the resulting entry
func (s *settlementService) VerifyBySignature(ctx context.Context, signature, raffleSlug, adminWallet string) (*entities.VerificationResult, error) {
	rec, err := s.reconciler.Reconcile(ctx, signature, raffleSlug)
	if err != nil {
		return nil, err
	}
	return s.settle(ctx, rec.Entry, rec.Raffle, rec.Restored, adminWallet)
}

// VerifyEntry settles a known entry against a signature
func (s *settlementService) VerifyEntry(ctx context.Context, entryID int64, signature, adminWallet string) (*entities.VerificationResult, error) {
	entry, err := s.entryRepo.GetByID(ctx, entryID)
	if err != nil {
		return nil, fmt.Errorf("failed to load entry %d: %w", entryID, err)
	}
	if entry == nil {
		return nil, &entities.VerificationError{
			Kind:    entities.ErrorKindMismatch,
			Message: fmt.Sprintf("entry %d does not exist", entryID),
		}
	}

	raffle, err := s.raffleRepo.GetByID(ctx, entry.RaffleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load raffle %d: %w", entry.RaffleID, err)
	}
	if raffle == nil {
		return nil, fmt.Errorf("entry %d references missing raffle %d", entry.ID, entry.RaffleID)
	}

	restored := false
	if entry.HasSignature() {
		if *entry.TransactionSignature != signature {
			return nil, &entities.VerificationError{
				Kind:    entities.ErrorKindMismatch,
				Message: fmt.Sprintf("entry %d is already tied to a different transaction", entry.ID),
			}
		}
	} else {
		// Attach the caller's signature. If another entry already holds it
		// this is cross-entry reuse, a hard failure.
		err := s.entryRepo.AttachSignature(ctx, entry.ID, signature)
		if errors.Is(err, interfaces.ErrDuplicateSignature) {
			return nil, &entities.VerificationError{
				Kind:    entities.ErrorKindMismatch,
				Message: "transaction is already tied to another entry",
			}
		}
		if err != nil {
			return nil, fmt.Errorf("failed to attach signature to entry %d: %w", entry.ID, err)
		}
		entry, err = s.entryRepo.GetByID(ctx, entry.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to re-read entry %d: %w", entryID, err)
		}
		if entry == nil || !entry.HasSignature() || *entry.TransactionSignature != signature {
			return nil, &entities.VerificationError{
				Kind:    entities.ErrorKindMismatch,
				Message: fmt.Sprintf("could not attach transaction to entry %d", entryID),
			}
		}
		restored = true
	}

	return s.settle(ctx, entry, raffle, restored, adminWallet)
}

// settle runs the capacity gate, re-verifies the payment against the ledger,
// and transitions the entry. Safe under at-least-once delivery: settling an
// already-confirmed entry is a no-op success.
func (s *settlementService) settle(ctx context.Context, entry *entities.Entry, raffle *entities.Raffle, restored bool, adminWallet string) (*entities.VerificationResult, error) {
	requestID := uuid.NewString()
	logger := log.WithFields(log.Fields{
		"requestID": requestID,
		"raffle":    raffle.Slug,
		"entryID":   entry.ID,
	})

	// Idempotent fast path
	if entry.IsConfirmed() {
		logger.Info("entry already confirmed, no-op")
		return &entities.VerificationResult{
			RequestID: requestID,
			Status:    entities.VerificationConfirmed,
			Entry:     entry,
			Raffle:    raffle,
			Restored:  entry.WasRestored(),
		}, nil
	}

	if !entry.HasSignature() {
		return nil, &entities.VerificationError{
			Kind:    entities.ErrorKindMismatch,
			Message: fmt.Sprintf("entry %d has no transaction signature to verify", entry.ID),
		}
	}
	signature := *entry.TransactionSignature

	// Early capacity gate: reject before spending a ledger round trip. The
	// authoritative check runs again inside Confirm's transaction.
	if raffle.MaxTickets != nil {
		others, err := s.entryRepo.SumConfirmedTickets(ctx, raffle.ID, entry.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to sum confirmed tickets: %w", err)
		}
		if others+entry.TicketQuantity > *raffle.MaxTickets {
			return nil, s.rejectForCapacity(ctx, entry, raffle, logger)
		}
	}

	// Re-verify against the ledger with the full entry context
	if err := s.ledger.VerifyPayment(ctx, signature, entry.AmountPaid, raffle.Currency); err != nil {
		var verr *entities.VerificationError
		if errors.As(err, &verr) {
			switch verr.Kind {
			case entities.ErrorKindConfig:
				// Operator misconfiguration, not a bad payment. The entry
				// stays pending until the recipient wallet is configured.
				logger.WithError(err).Error("ledger re-check impossible, recipient not configured")
				return nil, err
			case entities.ErrorKindTemporary, entities.ErrorKindNotFound:
				// Signature stays persisted; a later verification picks
				// this up without losing the proof of payment.
				logger.WithError(err).Warn("ledger re-check inconclusive, entry stays pending")
				return &entities.VerificationResult{
					RequestID: requestID,
					Status:    entities.VerificationPendingRetry,
					Entry:     entry,
					Raffle:    raffle,
					Restored:  restored,
				}, nil
			}
		}
		// Permanent: amount/currency/recipient mismatch or unparseable
		logger.WithError(err).Warn("ledger re-check failed permanently, rejecting entry")
		if rejErr := s.entryRepo.Reject(ctx, entry.ID); rejErr != nil {
			logger.WithError(rejErr).Error("failed to reject entry after verification failure")
		}
		s.publish(events.EntryRejectedEvent{RaffleID: raffle.ID, EntryID: entry.ID, Reason: err.Error()})
		return nil, err
	}

	now := time.Now().UTC()
	outcome, err := s.entryRepo.Confirm(ctx, entry.ID, raffle.MaxTickets, now)
	if err != nil {
		return nil, fmt.Errorf("failed to confirm entry %d: %w", entry.ID, err)
	}

	switch outcome {
	case interfaces.ConfirmCapacityExceeded:
		return nil, s.rejectForCapacity(ctx, entry, raffle, logger)
	case interfaces.ConfirmNotPending:
		return nil, &entities.VerificationError{
			Kind:    entities.ErrorKindMismatch,
			Message: fmt.Sprintf("entry %d is not in a confirmable state", entry.ID),
		}
	}

	if outcome == interfaces.ConfirmCommitted && restored {
		var by *string
		if adminWallet != "" {
			by = &adminWallet
		}
		if err := s.entryRepo.MarkRestored(ctx, entry.ID, by, now); err != nil {
			logger.WithError(err).Error("failed to mark entry restored")
		}
	}

	confirmed, err := s.entryRepo.GetByID(ctx, entry.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to re-read confirmed entry %d: %w", entry.ID, err)
	}

	if outcome == interfaces.ConfirmCommitted {
		logger.WithFields(log.Fields{
			"wallet":   confirmed.WalletAddress,
			"tickets":  confirmed.TicketQuantity,
			"restored": restored,
		}).Info("entry confirmed")
		s.publish(events.EntryConfirmedEvent{
			RaffleID:             raffle.ID,
			RaffleSlug:           raffle.Slug,
			EntryID:              confirmed.ID,
			WalletAddress:        confirmed.WalletAddress,
			TicketQuantity:       confirmed.TicketQuantity,
			TransactionSignature: signature,
			Restored:             restored,
		})
	}

	return &entities.VerificationResult{
		RequestID: requestID,
		Status:    entities.VerificationConfirmed,
		Entry:     confirmed,
		Raffle:    raffle,
		Restored:  confirmed.WasRestored(),
	}, nil
}

// rejectForCapacity sacrifices the entry rather than partially honoring it
func (s *settlementService) rejectForCapacity(ctx context.Context, entry *entities.Entry, raffle *entities.Raffle, logger *log.Entry) error {
	logger.Warn("confirming entry would exceed raffle capacity, rejecting")
	if err := s.entryRepo.Reject(ctx, entry.ID); err != nil {
		logger.WithError(err).Error("failed to reject entry over capacity")
	}
	s.publish(events.EntryRejectedEvent{RaffleID: raffle.ID, EntryID: entry.ID, Reason: "capacity exceeded"})
	return &entities.VerificationError{
		Kind:       entities.ErrorKindCapacity,
		Message:    fmt.Sprintf("raffle %q is sold out: confirming %d tickets would exceed the %d ticket cap", raffle.Slug, entry.TicketQuantity, *raffle.MaxTickets),
		Suggestion: "contact support for a refund",
	}
}

func (s *settlementService) publish(event events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(event); err != nil {
		log.WithError(err).Warn("failed to publish event")
	}
}
