package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/eduplatform/progress-hub/internal/domain/progress"
	"github.com/eduplatform/progress-hub/internal/domain/shared"
	"github.com/eduplatform/progress-hub/pkg/retry"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// ProgressRepository implements progress.Store using PostgreSQL.
type ProgressRepository struct {
	conn *Connection
}

// NewProgressRepository creates a new PostgreSQL progress repository.
func NewProgressRepository(conn *Connection) *ProgressRepository {
	return &ProgressRepository{conn: conn}
}

// Compile-time checks.
var (
	_ progress.Store         = (*ProgressRepository)(nil)
	_ progress.AtomicUpdater = (*ProgressRepository)(nil)
)

// errLostInsert means another instance created the row between our
// SELECT and INSERT. The update is run again against that row.
var errLostInsert = errors.New("postgres: record created concurrently")

// ─────────────────────────────────────────────────────────────────────────────
// Records
// ─────────────────────────────────────────────────────────────────────────────

// FindRecord returns the user's record.
func (r *ProgressRepository) FindRecord(ctx context.Context, userID string) (*progress.Record, error) {
	var data []byte
	err := r.conn.QueryRow(ctx,
		"SELECT data FROM progress_records WHERE user_id = $1",
		userID,
	).Scan(&data)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrRecordNotFound
		}
		return nil, storeError("FindRecord", err)
	}

	record, err := decodeRecord(data)
	if err != nil {
		return nil, shared.WrapError("postgres", "FindRecord", shared.ErrCorruptDocument, userID, err)
	}
	return record, nil
}

// SaveRecord upserts the whole record.
func (r *ProgressRepository) SaveRecord(ctx context.Context, userID string, record *progress.Record) error {
	if userID == "" {
		return shared.ErrInvalidUserID
	}
	if record == nil {
		return shared.ErrNothingToPersist
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("postgres: encode record: %w", err)
	}

	query := `
		INSERT INTO progress_records (user_id, data, level, experience, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			data = EXCLUDED.data,
			level = EXCLUDED.level,
			experience = EXCLUDED.experience,
			updated_at = NOW()
	`
	if _, err := r.conn.Exec(ctx, query, userID, data, record.Level, record.Experience); err != nil {
		return storeError("SaveRecord", err)
	}
	return nil
}

// UpdateRecord implements progress.AtomicUpdater. The row is held with
// SELECT ... FOR UPDATE from load to save, so API replicas sharing the
// database apply their changes to one user one at a time.
func (r *ProgressRepository) UpdateRecord(ctx context.Context, userID string, fn func(*progress.Record) (*progress.Record, error)) error {
	if userID == "" {
		return shared.ErrInvalidUserID
	}

	policy := retry.Policy{
		Attempts:    2,
		ShouldRetry: func(err error) bool { return errors.Is(err, errLostInsert) },
	}
	err := policy.Do(ctx, func(ctx context.Context) error {
		return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
			return r.updateInTx(ctx, tx, userID, fn)
		})
	})

	var domainErr *shared.DomainError
	if err == nil || errors.As(err, &domainErr) {
		return err
	}
	return storeError("UpdateRecord", err)
}

func (r *ProgressRepository) updateInTx(ctx context.Context, tx pgx.Tx, userID string, fn func(*progress.Record) (*progress.Record, error)) error {
	var data []byte
	err := tx.QueryRow(ctx,
		"SELECT data FROM progress_records WHERE user_id = $1 FOR UPDATE",
		userID,
	).Scan(&data)

	var current *progress.Record
	switch {
	case err == nil:
		if current, err = decodeRecord(data); err != nil {
			return shared.WrapError("postgres", "UpdateRecord", shared.ErrCorruptDocument, userID, err)
		}
	case !IsNoRows(err):
		return err
	}

	next, err := fn(current)
	if err != nil || next == nil {
		return err
	}

	payload, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("postgres: encode record: %w", err)
	}

	if current == nil {
		tag, err := tx.Exec(ctx, `
			INSERT INTO progress_records (user_id, data, level, experience, updated_at)
			VALUES ($1, $2, $3, $4, NOW())
			ON CONFLICT (user_id) DO NOTHING
		`, userID, payload, next.Level, next.Experience)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return errLostInsert
		}
		return nil
	}

	_, err = tx.Exec(ctx, `
		UPDATE progress_records
		SET data = $2, level = $3, experience = $4, updated_at = NOW()
		WHERE user_id = $1
	`, userID, payload, next.Level, next.Experience)
	return err
}

// ListUserIDs returns all user ids in ascending order.
func (r *ProgressRepository) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := r.conn.Query(ctx, "SELECT user_id FROM progress_records ORDER BY user_id")
	if err != nil {
		return nil, storeError("ListUserIDs", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Achievements
// ─────────────────────────────────────────────────────────────────────────────

// ListUnlocks returns the user's unlocks in unlock order.
func (r *ProgressRepository) ListUnlocks(ctx context.Context, userID string) ([]progress.Unlock, error) {
	query := `
		SELECT id, user_id, achievement_id, name, description, icon, unlocked_at
		FROM achievement_unlocks
		WHERE user_id = $1
		ORDER BY unlocked_at ASC, id ASC
	`

	rows, err := r.conn.Query(ctx, query, userID)
	if err != nil {
		return nil, storeError("ListUnlocks", err)
	}
	defer rows.Close()

	var unlocks []progress.Unlock
	for rows.Next() {
		var u progress.Unlock
		if err := rows.Scan(&u.ID, &u.UserID, &u.AchievementID, &u.Name, &u.Description, &u.Icon, &u.UnlockedAt); err != nil {
			return nil, fmt.Errorf("failed to scan unlock: %w", err)
		}
		unlocks = append(unlocks, u)
	}
	return unlocks, rows.Err()
}

// AppendUnlock inserts an unlock. A repeated (user, achievement) pair
// returns shared.ErrAlreadyUnlocked.
func (r *ProgressRepository) AppendUnlock(ctx context.Context, u progress.Unlock) error {
	if err := u.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO achievement_unlocks (id, user_id, achievement_id, name, description, icon, unlocked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, achievement_id) DO NOTHING
	`
	tag, err := r.conn.Exec(ctx, query,
		u.ID, u.UserID, u.AchievementID, u.Name, u.Description, u.Icon, u.UnlockedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrAlreadyUnlocked
		}
		return storeError("AppendUnlock", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrAlreadyUnlocked
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPER METHODS
// ══════════════════════════════════════════════════════════════════════════════

func decodeRecord(data []byte) (*progress.Record, error) {
	var record progress.Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	record.Normalize()
	return &record, nil
}

// storeError keeps context errors as they are and reports everything else
// as the store being unavailable.
func storeError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return shared.WrapError("postgres", op, shared.ErrStoreUnavailable, "query failed", err)
}
