package repository

import (
	"context"
	"fmt"
	"time"

	"raffler/domain/entities"
	"raffler/domain/interfaces"

	"github.com/jackc/pgx/v5"
)

const entryColumns = `id, raffle_id, wallet_address, ticket_quantity, amount_paid, currency,
	       transaction_signature, status, created_at, verified_at, restored_at, restored_by`

// EntryRepository implements entry data access over Postgres
type EntryRepository struct {
	q Queryable
}

// NewEntryRepository creates a new entry repository
func NewEntryRepository(q Queryable) interfaces.EntryRepository {
	return &EntryRepository{q: q}
}

func scanEntry(row pgx.Row) (*entities.Entry, error) {
	var e entities.Entry
	err := row.Scan(
		&e.ID,
		&e.RaffleID,
		&e.WalletAddress,
		&e.TicketQuantity,
		&e.AmountPaid,
		&e.Currency,
		&e.TransactionSignature,
		&e.Status,
		&e.CreatedAt,
		&e.VerifiedAt,
		&e.RestoredAt,
		&e.RestoredBy,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// GetByID retrieves an entry by its ID
func (r *EntryRepository) GetByID(ctx context.Context, id int64) (*entities.Entry, error) {
	query := fmt.Sprintf(`SELECT %s FROM entries WHERE id = $1`, entryColumns)

	entry, err := scanEntry(r.q.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry by ID %d: %w", id, err)
	}
	return entry, nil
}

// GetByTransactionSignature retrieves the entry holding a signature
func (r *EntryRepository) GetByTransactionSignature(ctx context.Context, signature string) (*entities.Entry, error) {
	query := fmt.Sprintf(`SELECT %s FROM entries WHERE transaction_signature = $1`, entryColumns)

	entry, err := scanEntry(r.q.QueryRow(ctx, query, signature))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry by signature: %w", err)
	}
	return entry, nil
}

// Create creates a new entry. A unique violation on the signature index is
// mapped to ErrDuplicateSignature so the caller can re-read the winning row.
func (r *EntryRepository) Create(ctx context.Context, entry *entities.Entry) error {
	query := `
		INSERT INTO entries (raffle_id, wallet_address, ticket_quantity, amount_paid,
		                     currency, transaction_signature, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`

	err := r.q.QueryRow(ctx, query,
		entry.RaffleID,
		entry.WalletAddress,
		entry.TicketQuantity,
		entry.AmountPaid,
		entry.Currency,
		entry.TransactionSignature,
		entry.Status,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return interfaces.ErrDuplicateSignature
		}
		return fmt.Errorf("failed to create entry: %w", err)
	}
	return nil
}

// ListByRaffle returns all entries for a raffle
func (r *EntryRepository) ListByRaffle(ctx context.Context, raffleID int64) ([]*entities.Entry, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM entries
		WHERE raffle_id = $1
		ORDER BY created_at ASC, id ASC`, entryColumns)

	rows, err := r.q.Query(ctx, query, raffleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries for raffle %d: %w", raffleID, err)
	}
	defer rows.Close()

	var entries []*entities.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entries: %w", err)
	}
	return entries, nil
}

// SumConfirmedTickets returns the confirmed ticket total for a raffle,
// excluding the given entry ID when it is non-zero
func (r *EntryRepository) SumConfirmedTickets(ctx context.Context, raffleID int64, excludeEntryID int64) (int, error) {
	query := `
		SELECT COALESCE(SUM(ticket_quantity), 0)
		FROM entries
		WHERE raffle_id = $1
		  AND status = 'confirmed'
		  AND ($2 = 0 OR id != $2)
	`

	var total int
	if err := r.q.QueryRow(ctx, query, raffleID, excludeEntryID).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum confirmed tickets for raffle %d: %w", raffleID, err)
	}
	return total, nil
}

// AttachSignature persists a signature onto an entry that has none yet. A
// reused rejected entry goes back to pending so settlement can re-evaluate it.
func (r *EntryRepository) AttachSignature(ctx context.Context, id int64, signature string) error {
	_, err := r.q.Exec(ctx, `
		UPDATE entries
		SET transaction_signature = $2,
		    status = 'pending'
		WHERE id = $1
		  AND transaction_signature IS NULL
		  AND status != 'confirmed'`, id, signature)
	if err != nil {
		if isUniqueViolation(err) {
			return interfaces.ErrDuplicateSignature
		}
		return fmt.Errorf("failed to attach signature to entry %d: %w", id, err)
	}
	// Zero rows means the entry already holds a signature or is confirmed;
	// the caller re-reads to decide what that means.
	return nil
}

// Confirm transitions an entry to confirmed with the capacity check inside
// the same transaction. The raffle row is locked first so concurrent
// confirmations near max_tickets serialize.
func (r *EntryRepository) Confirm(ctx context.Context, id int64, maxTickets *int, at time.Time) (interfaces.ConfirmOutcome, error) {
	tx, err := r.q.Begin(ctx)
	if err != nil {
		return interfaces.ConfirmNotPending, fmt.Errorf("failed to begin confirm transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var raffleID int64
	err = tx.QueryRow(ctx, `
		SELECT r.id
		FROM raffles r
		JOIN entries e ON e.raffle_id = r.id
		WHERE e.id = $1
		FOR UPDATE OF r`, id).Scan(&raffleID)
	if err == pgx.ErrNoRows {
		return interfaces.ConfirmNotPending, nil
	}
	if err != nil {
		return interfaces.ConfirmNotPending, fmt.Errorf("failed to lock raffle for entry %d: %w", id, err)
	}

	result, err := tx.Exec(ctx, `
		UPDATE entries e
		SET status = 'confirmed',
		    verified_at = $2
		WHERE e.id = $1
		  AND e.status = 'pending'
		  AND ($3::int IS NULL OR
		       (SELECT COALESCE(SUM(o.ticket_quantity), 0)
		        FROM entries o
		        WHERE o.raffle_id = e.raffle_id
		          AND o.status = 'confirmed'
		          AND o.id != e.id) + e.ticket_quantity <= $3)`,
		id, at, maxTickets)
	if err != nil {
		return interfaces.ConfirmNotPending, fmt.Errorf("failed to confirm entry %d: %w", id, err)
	}

	outcome := interfaces.ConfirmCommitted
	if result.RowsAffected() == 0 {
		var status entities.EntryStatus
		err = tx.QueryRow(ctx, `SELECT status FROM entries WHERE id = $1`, id).Scan(&status)
		if err != nil {
			return interfaces.ConfirmNotPending, fmt.Errorf("failed to re-read entry %d: %w", id, err)
		}
		switch status {
		case entities.EntryStatusConfirmed:
			outcome = interfaces.ConfirmAlreadyConfirmed
		case entities.EntryStatusPending:
			outcome = interfaces.ConfirmCapacityExceeded
		default:
			outcome = interfaces.ConfirmNotPending
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return interfaces.ConfirmNotPending, fmt.Errorf("failed to commit confirm transaction: %w", err)
	}
	return outcome, nil
}

// Reject transitions an entry to rejected
func (r *EntryRepository) Reject(ctx context.Context, id int64) error {
	result, err := r.q.Exec(ctx, `
		UPDATE entries
		SET status = 'rejected'
		WHERE id = $1
		  AND status != 'confirmed'`, id)
	if err != nil {
		return fmt.Errorf("failed to reject entry %d: %w", id, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("entry %d not found or already confirmed", id)
	}
	return nil
}

// MarkRestored records that the entry was recovered via reconciliation
func (r *EntryRepository) MarkRestored(ctx context.Context, id int64, by *string, at time.Time) error {
	result, err := r.q.Exec(ctx, `
		UPDATE entries
		SET restored_at = $2,
		    restored_by = $3
		WHERE id = $1`, id, at, by)
	if err != nil {
		return fmt.Errorf("failed to mark entry %d restored: %w", id, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("entry with ID %d not found", id)
	}
	return nil
}
