package preferences

import (
	"context"
	"fmt"

	"github.com/ttm0z/stock-analyzer-sub001/internal/dbx"
	"github.com/ttm0z/stock-analyzer-sub001/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, userID string) (*models.UserPreferences, error) {
	query := `SELECT key, value FROM user_preferences WHERE user_id = $1`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	prefs := &models.UserPreferences{UserID: userID, Values: map[string]string{}}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		prefs.Values[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return prefs, nil
}

func (r *PostgresRepository) Set(ctx context.Context, userID, key, value string) error {
	query := `
		INSERT INTO user_preferences (user_id, key, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, key)
		DO UPDATE SET value = EXCLUDED.value, updated_at = now()
	`
	if _, err := r.db.ExecContext(ctx, query, userID, key, value); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
