package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/anicoll/homehub/internal/pkg/model"
)

// GetScript returns nil, nil when the script does not exist.
func (db *Database) GetScript(ctx context.Context, id string) (*model.Script, error) {
	var s model.Script
	err := db.pool.QueryRow(ctx, `
		SELECT id, name, source, enabled, requires
		FROM script
		WHERE id = $1`, id).Scan(&s.ID, &s.Name, &s.Source, &s.Enabled, &s.Requires)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (db *Database) SaveScript(ctx context.Context, s model.Script) error {
	requires := s.Requires
	if requires == nil {
		requires = []string{}
	}
	_, err := db.pool.Exec(ctx, `
		INSERT INTO script (id, name, source, enabled, requires)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, source = EXCLUDED.source, enabled = EXCLUDED.enabled, requires = EXCLUDED.requires;`,
		s.ID, s.Name, s.Source, s.Enabled, requires)
	return err
}

func (db *Database) SaveSchedule(ctx context.Context, s model.ScheduledScript) error {
	_, err := db.pool.Exec(ctx, `
		INSERT INTO schedule (id, script_id, cron)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET script_id = EXCLUDED.script_id, cron = EXCLUDED.cron;`,
		s.ID, s.ScriptID, s.Cron)
	return err
}

func (db *Database) SaveTrigger(ctx context.Context, t model.VariableTrigger) error {
	_, err := db.pool.Exec(ctx, `
		INSERT INTO variable_trigger (script_id, gateway, device_id, variable)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT DO NOTHING;`,
		t.ScriptID, t.Gateway, t.DeviceID, t.Variable)
	return err
}

func (db *Database) Schedules(ctx context.Context) ([]model.ScheduledScript, error) {
	rows, err := db.pool.Query(ctx, `SELECT id, script_id, cron FROM schedule ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.ScheduledScript, error) {
		var s model.ScheduledScript
		err := row.Scan(&s.ID, &s.ScriptID, &s.Cron)
		return s, err
	})
}

func (db *Database) Triggers(ctx context.Context) ([]model.VariableTrigger, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT script_id, gateway, device_id, variable
		FROM variable_trigger
		ORDER BY script_id, gateway, device_id, variable`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.VariableTrigger, error) {
		var t model.VariableTrigger
		err := row.Scan(&t.ScriptID, &t.Gateway, &t.DeviceID, &t.Variable)
		return t, err
	})
}
