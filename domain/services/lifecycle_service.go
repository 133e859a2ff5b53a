package services

import (
	"context"
	"fmt"
	"time"

	"raffler/domain/entities"
	"raffler/domain/events"
	"raffler/domain/interfaces"

	log "github.com/sirupsen/logrus"
)

// Allowed outage-recovery extension windows
var allowedExtensionHours = map[int]bool{24: true, 72: true, 168: true}

// lifecycleService covers raffle lifecycle maintenance outside the draw path
type lifecycleService struct {
	raffleRepo interfaces.RaffleRepository
	entryRepo  interfaces.EntryRepository
	publisher  interfaces.EventPublisher
}

// NewLifecycleService creates a new lifecycle service
func NewLifecycleService(
	raffleRepo interfaces.RaffleRepository,
	entryRepo interfaces.EntryRepository,
	publisher interfaces.EventPublisher,
) interfaces.LifecycleService {
	return &lifecycleService{
		raffleRepo: raffleRepo,
		entryRepo:  entryRepo,
		publisher:  publisher,
	}
}

// Restore extends an ended, winnerless raffle's active window after an
// outage prevented ticket purchases. The original end time is captured
// exactly once so the post-extension draw window stays anchored to the true
// scheduled end.
func (s *lifecycleService) Restore(ctx context.Context, raffleID int64, extensionHours int) (*entities.Raffle, error) {
	if !allowedExtensionHours[extensionHours] {
		return nil, fmt.Errorf("extension must be 24, 72, or 168 hours, got %d", extensionHours)
	}

	raffle, err := s.raffleRepo.GetByID(ctx, raffleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load raffle %d: %w", raffleID, err)
	}
	if raffle == nil {
		return nil, fmt.Errorf("raffle %d not found", raffleID)
	}

	now := time.Now().UTC()
	if raffle.HasWinner() {
		return nil, fmt.Errorf("raffle %q already has a winner", raffle.Slug)
	}
	if !raffle.HasEnded(now) {
		return nil, fmt.Errorf("raffle %q has not ended yet", raffle.Slug)
	}

	originalEnd := raffle.EndTime
	newEnd := now.Add(time.Duration(extensionHours) * time.Hour)

	if err := s.raffleRepo.UpdateEndTime(ctx, raffleID, newEnd, &originalEnd); err != nil {
		return nil, fmt.Errorf("failed to extend raffle %d: %w", raffleID, err)
	}
	// Extension reopens purchases
	if raffle.Status == entities.RaffleStatusReadyToDraw {
		if err := s.raffleRepo.UpdateStatus(ctx, raffleID, entities.RaffleStatusLive); err != nil {
			return nil, fmt.Errorf("failed to reopen raffle %d: %w", raffleID, err)
		}
	}

	updated, err := s.raffleRepo.GetByID(ctx, raffleID)
	if err != nil {
		return nil, fmt.Errorf("failed to re-read raffle %d: %w", raffleID, err)
	}

	log.WithFields(log.Fields{
		"raffle":         updated.Slug,
		"newEndTime":     updated.EndTime,
		"originalEnd":    updated.OriginalEndTime,
		"extensionHours": extensionHours,
	}).Info("raffle extended after outage")

	if s.publisher != nil && updated.OriginalEndTime != nil {
		if err := s.publisher.Publish(events.RaffleExtendedEvent{
			RaffleID:        updated.ID,
			RaffleSlug:      updated.Slug,
			NewEndTime:      updated.EndTime,
			OriginalEndTime: *updated.OriginalEndTime,
			ExtensionHours:  extensionHours,
		}); err != nil {
			log.WithError(err).Warn("failed to publish extension event")
		}
	}

	return updated, nil
}

// PromoteScheduled flips draft raffles to live once start_time elapses
func (s *lifecycleService) PromoteScheduled(ctx context.Context) (int64, error) {
	promoted, err := s.raffleRepo.PromoteScheduled(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	if promoted > 0 {
		log.WithField("count", promoted).Info("promoted scheduled raffles to live")
	}
	return promoted, nil
}

// SweepEnded marks ended raffles that pass eligibility as ready to draw and
// returns the ones that ended without meeting quorum, so operators can
// extend or abandon them.
func (s *lifecycleService) SweepEnded(ctx context.Context, now time.Time) ([]*entities.Raffle, error) {
	ended, err := s.raffleRepo.ListEndedWithoutWinner(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list ended raffles: %w", err)
	}

	var quorumNotMet []*entities.Raffle
	for _, raffle := range ended {
		confirmed, err := s.entryRepo.SumConfirmedTickets(ctx, raffle.ID, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to sum tickets for raffle %d: %w", raffle.ID, err)
		}

		eligibility := raffle.DrawEligibility(confirmed, now)
		if eligibility.Eligible {
			if raffle.Status == entities.RaffleStatusLive {
				if err := s.raffleRepo.UpdateStatus(ctx, raffle.ID, entities.RaffleStatusReadyToDraw); err != nil {
					return nil, fmt.Errorf("failed to mark raffle %d ready to draw: %w", raffle.ID, err)
				}
			}
			continue
		}

		for _, gate := range eligibility.FailedGates {
			if gate == entities.GateQuorum {
				log.WithFields(log.Fields{
					"raffle":    raffle.Slug,
					"confirmed": confirmed,
					"quorum":    *raffle.MinTickets,
				}).Warn("raffle ended without meeting quorum")
				quorumNotMet = append(quorumNotMet, raffle)
				break
			}
		}
	}

	return quorumNotMet, nil
}
