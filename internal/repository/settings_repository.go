package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/tutor_booking/internal/repository/base"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SettingsRepository пары ключ-значение, сгруппированные по scope
type SettingsRepository struct {
	*base.Repository
}

func NewSettingsRepository(pool *pgxpool.Pool) *SettingsRepository {
	return &SettingsRepository{Repository: base.NewRepository(pool)}
}

// Load все значения scope. Для неизвестного scope пустая map.
func (r *SettingsRepository) Load(ctx context.Context, scope string) (map[string]string, error) {
	rows, err := r.Pool().Query(ctx, `SELECT key, value FROM settings WHERE scope = $1`, scope)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		values[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate settings: %w", err)
	}

	return values, nil
}

// Save заменяет все значения scope
func (r *SettingsRepository) Save(ctx context.Context, scope string, values map[string]string) error {
	return r.InTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM settings WHERE scope = $1`, scope); err != nil {
			return fmt.Errorf("clear settings: %w", err)
		}

		batch := &pgx.Batch{}
		for key, value := range values {
			batch.Queue(`INSERT INTO settings (scope, key, value) VALUES ($1, $2, $3)`, scope, key, value)
		}
		if batch.Len() == 0 {
			return nil
		}

		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("save settings: %w", err)
		}
		return nil
	})
}
