package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"nexus-chat/internal/models"
)

var (
	ErrThreadNotFound  = errors.New("thread not found")
	ErrDuplicateThread = errors.New("thread already exists for pair and listing")
)

const threadColumns = `id, listing_ref, user_lo, user_hi, status, created_at, updated_at`

// ThreadRepository abstracts thread persistence.
type ThreadRepository interface {
	Create(ctx context.Context, userA, userB, listingRef int) (models.Thread, error)
	FindByPairAndListing(ctx context.Context, userA, userB, listingRef int) (models.Thread, error)
	FindByID(ctx context.Context, threadID int) (models.Thread, error)
	ListForUser(ctx context.Context, userID int) ([]models.ThreadSummary, error)
}

// ThreadRepo is a sqlx implementation of ThreadRepository.
type ThreadRepo struct {
	db *sqlx.DB
}

// NewThreadRepo constructs a ThreadRepo.
func NewThreadRepo(db *sqlx.DB) *ThreadRepo {
	return &ThreadRepo{db: db}
}

// Create inserts a new thread for the normalized pair. The unique constraint
// on (listing_ref, user_lo, user_hi) is the authoritative guard against
// concurrent creates; a losing insert returns ErrDuplicateThread.
func (r *ThreadRepo) Create(ctx context.Context, userA, userB, listingRef int) (models.Thread, error) {
	lo, hi := normalizePair(userA, userB)

	var thread models.Thread
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO threads (listing_ref, user_lo, user_hi) VALUES ($1, $2, $3)
         RETURNING `+threadColumns,
		listingRef, lo, hi).StructScan(&thread)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return models.Thread{}, ErrDuplicateThread
		}
		return models.Thread{}, err
	}
	return thread, nil
}

// FindByPairAndListing looks up the thread for an unordered user pair and a
// listing.
func (r *ThreadRepo) FindByPairAndListing(ctx context.Context, userA, userB, listingRef int) (models.Thread, error) {
	lo, hi := normalizePair(userA, userB)

	var thread models.Thread
	err := r.db.GetContext(ctx, &thread,
		`SELECT `+threadColumns+` FROM threads
         WHERE listing_ref=$1 AND user_lo=$2 AND user_hi=$3`,
		listingRef, lo, hi)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Thread{}, ErrThreadNotFound
	}
	return thread, err
}

// FindByID fetches a thread by id.
func (r *ThreadRepo) FindByID(ctx context.Context, threadID int) (models.Thread, error) {
	var thread models.Thread
	err := r.db.GetContext(ctx, &thread,
		`SELECT `+threadColumns+` FROM threads WHERE id=$1`, threadID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Thread{}, ErrThreadNotFound
	}
	return thread, err
}

// ListForUser returns the user's threads newest-activity-first, each with the
// latest message as a preview.
func (r *ThreadRepo) ListForUser(ctx context.Context, userID int) ([]models.ThreadSummary, error) {
	query := `SELECT t.id, t.listing_ref, t.user_lo, t.user_hi, t.status, t.updated_at,
            m.body AS last_message, m.created_at AS last_message_at
        FROM threads t
        LEFT JOIN LATERAL (
            SELECT body, created_at FROM thread_messages
            WHERE thread_id = t.id ORDER BY id DESC LIMIT 1
        ) m ON TRUE
        WHERE t.user_lo=$1 OR t.user_hi=$1
        ORDER BY t.updated_at DESC`
	rows, err := r.db.QueryxContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.ThreadSummary
	for rows.Next() {
		var row struct {
			models.Thread
			LastMessage   *string    `db:"last_message"`
			LastMessageAt *time.Time `db:"last_message_at"`
		}
		if err := rows.StructScan(&row); err != nil {
			return nil, err
		}
		result = append(result, models.ThreadSummary{
			ThreadID:       row.ID,
			ListingRef:     row.ListingRef,
			CounterpartyID: row.Counterparty(userID),
			Status:         row.Status,
			LastMessage:    row.LastMessage,
			LastMessageAt:  row.LastMessageAt,
			UpdatedAt:      row.UpdatedAt,
		})
	}
	return result, rows.Err()
}

func normalizePair(userA, userB int) (int, int) {
	if userA > userB {
		return userB, userA
	}
	return userA, userB
}
