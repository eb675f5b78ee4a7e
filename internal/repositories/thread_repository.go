package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"resonate/chat-service/internal/errs"
	"resonate/chat-service/internal/models"
)

// ThreadRepository abstracts conversation thread persistence.
type ThreadRepository interface {
	ResolveOrCreate(ctx context.Context, userID int, otherID int) (models.Thread, error)
	GetThread(ctx context.Context, threadID int) (models.Thread, error)
	IsParticipant(ctx context.Context, threadID int, userID int) (bool, error)
	ListInbox(ctx context.Context, userID int) ([]models.ThreadSummary, error)
}

// ThreadRepo is a sqlx implementation of ThreadRepository.
type ThreadRepo struct {
	db *sqlx.DB
}

// NewThreadRepo constructs a ThreadRepo.
func NewThreadRepo(db *sqlx.DB) *ThreadRepo {
	return &ThreadRepo{db: db}
}

const threadColumns = `id, user1_id, user2_id, last_activity, created_at`

// ResolveOrCreate returns the single canonical thread for the unordered user
// pair, creating it on first contact. Repeated calls with either argument
// order yield the same row; a concurrent create racing on the unique
// constraint falls back to the winner's row.
func (r *ThreadRepo) ResolveOrCreate(ctx context.Context, userID int, otherID int) (models.Thread, error) {
	if userID == otherID {
		return models.Thread{}, errs.ErrSelfThread
	}
	user1, user2 := normalizePair(userID, otherID)

	var thread models.Thread
	err := r.db.GetContext(ctx, &thread,
		`SELECT `+threadColumns+` FROM threads WHERE user1_id=$1 AND user2_id=$2`, user1, user2)
	if err == nil {
		return thread, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Thread{}, err
	}

	err = r.db.GetContext(ctx, &thread,
		`INSERT INTO threads (user1_id, user2_id) VALUES ($1, $2)
         ON CONFLICT (user1_id, user2_id) DO NOTHING
         RETURNING `+threadColumns, user1, user2)
	if err == nil {
		return thread, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Thread{}, err
	}

	// Lost the race: someone else inserted the row between our SELECT and
	// INSERT. Fetch theirs.
	err = r.db.GetContext(ctx, &thread,
		`SELECT `+threadColumns+` FROM threads WHERE user1_id=$1 AND user2_id=$2`, user1, user2)
	return thread, err
}

// GetThread fetches a thread by id.
func (r *ThreadRepo) GetThread(ctx context.Context, threadID int) (models.Thread, error) {
	var thread models.Thread
	err := r.db.GetContext(ctx, &thread,
		`SELECT `+threadColumns+` FROM threads WHERE id=$1`, threadID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Thread{}, errs.ErrThreadNotFound
	}
	return thread, err
}

// IsParticipant checks whether a user belongs to the thread.
func (r *ThreadRepo) IsParticipant(ctx context.Context, threadID int, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM threads WHERE id=$1 AND (user1_id=$2 OR user2_id=$2))`, threadID, userID)
	return exists, err
}

// ListInbox returns the user's threads ordered by last activity, most recent
// first.
func (r *ThreadRepo) ListInbox(ctx context.Context, userID int) ([]models.ThreadSummary, error) {
	rows, err := r.db.QueryxContext(ctx,
		`SELECT `+threadColumns+` FROM threads
         WHERE user1_id=$1 OR user2_id=$1
         ORDER BY last_activity DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.ThreadSummary
	for rows.Next() {
		var thread models.Thread
		if err := rows.StructScan(&thread); err != nil {
			return nil, err
		}
		result = append(result, models.ThreadSummary{
			ThreadID:     thread.ID,
			OtherUserID:  thread.OtherParticipant(userID),
			LastActivity: thread.LastActivity,
			Created:      thread.CreatedAt,
		})
	}
	return result, rows.Err()
}

func normalizePair(a, b int) (int, int) {
	if a < b {
		return a, b
	}
	return b, a
}
