package repository

import (
	"context"
	"fmt"
	"time"

	"raffler/domain/entities"
	"raffler/domain/interfaces"

	"github.com/jackc/pgx/v5"
)

const raffleColumns = `id, slug, title, ticket_price, currency, max_tickets, min_tickets,
	       start_time, end_time, original_end_time, status, winner_wallet,
	       winner_selected_at, created_at`

// RaffleRepository implements raffle data access over Postgres
type RaffleRepository struct {
	q Queryable
}

// NewRaffleRepository creates a new raffle repository
func NewRaffleRepository(q Queryable) interfaces.RaffleRepository {
	return &RaffleRepository{q: q}
}

func scanRaffle(row pgx.Row) (*entities.Raffle, error) {
	var r entities.Raffle
	err := row.Scan(
		&r.ID,
		&r.Slug,
		&r.Title,
		&r.TicketPrice,
		&r.Currency,
		&r.MaxTickets,
		&r.MinTickets,
		&r.StartTime,
		&r.EndTime,
		&r.OriginalEndTime,
		&r.Status,
		&r.WinnerWallet,
		&r.WinnerSelectedAt,
		&r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetByID retrieves a raffle by its ID
func (r *RaffleRepository) GetByID(ctx context.Context, id int64) (*entities.Raffle, error) {
	query := fmt.Sprintf(`SELECT %s FROM raffles WHERE id = $1`, raffleColumns)

	raffle, err := scanRaffle(r.q.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get raffle by ID %d: %w", id, err)
	}
	return raffle, nil
}

// GetBySlug retrieves a raffle by its slug
func (r *RaffleRepository) GetBySlug(ctx context.Context, slug string) (*entities.Raffle, error) {
	query := fmt.Sprintf(`SELECT %s FROM raffles WHERE slug = $1`, raffleColumns)

	raffle, err := scanRaffle(r.q.QueryRow(ctx, query, slug))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get raffle by slug %q: %w", slug, err)
	}
	return raffle, nil
}

// ListNonDraft returns every raffle that has left draft status
func (r *RaffleRepository) ListNonDraft(ctx context.Context) ([]*entities.Raffle, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM raffles
		WHERE status != 'draft'
		ORDER BY end_time ASC`, raffleColumns)

	return r.listRaffles(ctx, query)
}

// ListEndedWithoutWinner returns raffles whose end time has passed with no
// winner committed
func (r *RaffleRepository) ListEndedWithoutWinner(ctx context.Context, before time.Time) ([]*entities.Raffle, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM raffles
		WHERE status != 'draft'
		  AND winner_wallet IS NULL
		  AND end_time <= $1
		ORDER BY end_time ASC`, raffleColumns)

	return r.listRaffles(ctx, query, before)
}

func (r *RaffleRepository) listRaffles(ctx context.Context, query string, args ...any) ([]*entities.Raffle, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list raffles: %w", err)
	}
	defer rows.Close()

	var raffles []*entities.Raffle
	for rows.Next() {
		raffle, err := scanRaffle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan raffle: %w", err)
		}
		raffles = append(raffles, raffle)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate raffles: %w", err)
	}
	return raffles, nil
}

// Create creates a new raffle
func (r *RaffleRepository) Create(ctx context.Context, raffle *entities.Raffle) error {
	query := `
		INSERT INTO raffles (slug, title, ticket_price, currency, max_tickets,
		                     min_tickets, start_time, end_time, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`

	err := r.q.QueryRow(ctx, query,
		raffle.Slug,
		raffle.Title,
		raffle.TicketPrice,
		raffle.Currency,
		raffle.MaxTickets,
		raffle.MinTickets,
		raffle.StartTime,
		raffle.EndTime,
		raffle.Status,
	).Scan(&raffle.ID, &raffle.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create raffle %q: %w", raffle.Slug, err)
	}
	return nil
}

// UpdateStatus updates a raffle's lifecycle status
func (r *RaffleRepository) UpdateStatus(ctx context.Context, id int64, status entities.RaffleStatus) error {
	result, err := r.q.Exec(ctx, `UPDATE raffles SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("failed to update raffle %d status: %w", id, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("raffle with ID %d not found", id)
	}
	return nil
}

// PromoteScheduled flips draft raffles to live once their start time passes
func (r *RaffleRepository) PromoteScheduled(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.q.Exec(ctx, `
		UPDATE raffles
		SET status = 'live'
		WHERE status = 'draft'
		  AND start_time <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to promote scheduled raffles: %w", err)
	}
	return result.RowsAffected(), nil
}

// SetWinner commits the winner conditionally. The write only succeeds while
// winner_wallet is NULL, so at most one commit per raffle ever lands.
func (r *RaffleRepository) SetWinner(ctx context.Context, id int64, wallet string, at time.Time) (bool, error) {
	result, err := r.q.Exec(ctx, `
		UPDATE raffles
		SET winner_wallet = $2,
		    winner_selected_at = $3,
		    status = 'completed'
		WHERE id = $1
		  AND winner_wallet IS NULL`, id, wallet, at)
	if err != nil {
		return false, fmt.Errorf("failed to set winner for raffle %d: %w", id, err)
	}
	return result.RowsAffected() == 1, nil
}

// UpdateEndTime sets a new end time. When originalEnd is non-nil it is
// written only if original_end_time is still NULL, so the first true end
// time is captured exactly once.
func (r *RaffleRepository) UpdateEndTime(ctx context.Context, id int64, newEnd time.Time, originalEnd *time.Time) error {
	result, err := r.q.Exec(ctx, `
		UPDATE raffles
		SET end_time = $2,
		    original_end_time = COALESCE(original_end_time, $3)
		WHERE id = $1`, id, newEnd, originalEnd)
	if err != nil {
		return fmt.Errorf("failed to update end time for raffle %d: %w", id, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("raffle with ID %d not found", id)
	}
	return nil
}
