package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ttm0z/stock-analyzer-sub001/internal/common"
	"github.com/ttm0z/stock-analyzer-sub001/internal/dbx"
	"github.com/ttm0z/stock-analyzer-sub001/internal/server/models"
)

// PostgresRepository implements session storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, s *models.UserSession) (*models.UserSession, error) {
	query := `
		INSERT INTO user_sessions (user_id, created_at, last_activity, expires_at,
			device_fingerprint, user_agent, ip_address, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE)
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query,
		s.UserID, s.CreatedAt, s.LastActivity, s.ExpiresAt,
		s.DeviceFingerprint, s.UserAgent, s.IPAddress).Scan(&s.ID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	s.IsActive = true
	return s, nil
}

func (r *PostgresRepository) Find(ctx context.Context, id string) (*models.UserSession, error) {
	query := `
		SELECT id, user_id, created_at, last_activity, expires_at,
			device_fingerprint, user_agent, ip_address, is_active
		FROM user_sessions
		WHERE id = $1
	`
	s := &models.UserSession{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&s.ID, &s.UserID, &s.CreatedAt, &s.LastActivity, &s.ExpiresAt,
		&s.DeviceFingerprint, &s.UserAgent, &s.IPAddress, &s.IsActive,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) UpdateActivity(ctx context.Context, id string, lastActivity, expiresAt time.Time) error {
	query := `
		UPDATE user_sessions
		SET last_activity = $2, expires_at = $3
		WHERE id = $1 AND is_active
	`
	res, err := r.db.ExecContext(ctx, query, id, lastActivity, expiresAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) Deactivate(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE user_sessions
		SET is_active = FALSE
		WHERE id = $1 AND is_active
	`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n > 0, nil
}

func (r *PostgresRepository) LockDevice(ctx context.Context, userID, fingerprint string) error {
	query := `SELECT pg_advisory_xact_lock(hashtextextended($1 || ':' || $2, 0))`
	if _, err := r.db.ExecContext(ctx, query, userID, fingerprint); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeactivateActiveByDevice(ctx context.Context, userID, fingerprint string) ([]string, error) {
	query := `
		UPDATE user_sessions
		SET is_active = FALSE
		WHERE user_id = $1 AND device_fingerprint = $2 AND is_active
		RETURNING id
	`
	return r.collectIDs(ctx, query, userID, fingerprint)
}

func (r *PostgresRepository) DeactivateAllForUser(ctx context.Context, userID string) ([]string, error) {
	query := `
		UPDATE user_sessions
		SET is_active = FALSE
		WHERE user_id = $1 AND is_active
		RETURNING id
	`
	return r.collectIDs(ctx, query, userID)
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM user_sessions
		WHERE expires_at < $1 OR (NOT is_active AND last_activity < $1)
	`
	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) collectIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}
