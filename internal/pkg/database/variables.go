package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/anicoll/homehub/internal/pkg/model"
)

// LoadVariables returns the latest value of every variable.
func (db *Database) LoadVariables(ctx context.Context) ([]model.Variable, error) {
	const query = `
	SELECT gateway, device_id, name, value, time_stamp
	FROM variable;
	`
	rows, err := db.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanVariable)
}

// GetHistory returns the recorded values of one variable between from and
// to, newest first. Without a range the last two days are returned.
func (db *Database) GetHistory(ctx context.Context, key model.VariableKey, from, to *time.Time) ([]model.Variable, error) {
	if from == nil || to == nil {
		start, end := time.Now().AddDate(0, 0, -2), time.Now()
		from, to = &start, &end
	}
	const query = `
	SELECT gateway, device_id, name, value, time_stamp
	FROM variable_history
	WHERE gateway = $1 AND device_id = $2 AND name = $3 AND time_stamp BETWEEN $4 AND $5
	ORDER BY time_stamp DESC;
	`
	rows, err := db.pool.Query(ctx, query, key.Gateway, key.DeviceID, key.Name, *from, *to)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanVariable)
}

func scanVariable(row pgx.CollectableRow) (model.Variable, error) {
	var (
		v   model.Variable
		raw []byte
	)
	if err := row.Scan(&v.Gateway, &v.DeviceID, &v.Name, &raw, &v.Timestamp); err != nil {
		return v, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &v.Value); err != nil {
			return v, fmt.Errorf("variable %s.%s.%s: %w", v.Gateway, v.DeviceID, v.Name, err)
		}
	}
	return v, nil
}

// Write upserts the latest values and appends them to the history.
func (db *Database) Write(ctx context.Context, vars []model.Variable) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, v := range vars {
		raw, err := json.Marshal(v.Value)
		if err != nil {
			return fmt.Errorf("variable %s.%s.%s: %w", v.Gateway, v.DeviceID, v.Name, err)
		}
		batch.Queue(`
			INSERT INTO variable (gateway, device_id, name, value, time_stamp)
			VALUES ($1, $2, $3, $4::jsonb, $5)
			ON CONFLICT (gateway, device_id, name) DO UPDATE
			SET value = EXCLUDED.value, time_stamp = EXCLUDED.time_stamp;`,
			v.Gateway, v.DeviceID, v.Name, string(raw), v.Timestamp)
		batch.Queue(`
			INSERT INTO variable_history (gateway, device_id, name, value, time_stamp)
			VALUES ($1, $2, $3, $4::jsonb, $5);`,
			v.Gateway, v.DeviceID, v.Name, string(raw), v.Timestamp)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
