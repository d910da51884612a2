package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/anicoll/homehub/internal/pkg/model"
)

func (db *Database) LoadDevices(ctx context.Context, gateway string) ([]model.Device, error) {
	const query = `
	SELECT id, name, icon, properties
	FROM device
	WHERE gateway = $1
	ORDER BY created_at, id;
	`
	rows, err := db.pool.Query(ctx, query, gateway)
	if err != nil {
		return nil, err
	}
	devices, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Device, error) {
		var (
			d     model.Device
			props []byte
		)
		if err := row.Scan(&d.ID, &d.Name, &d.Icon, &props); err != nil {
			return d, err
		}
		if err := json.Unmarshal(props, &d.Properties); err != nil {
			return d, fmt.Errorf("device %s properties: %w", d.ID, err)
		}
		d.Battery = model.BatteryUnknown
		return d, nil
	})
	if err != nil {
		return nil, err
	}
	return devices, nil
}

func (db *Database) SaveDevice(ctx context.Context, gateway string, device model.Device) error {
	props := device.Properties
	if props == nil {
		props = map[string]string{}
	}
	raw, err := json.Marshal(props)
	if err != nil {
		return err
	}
	_, err = db.pool.Exec(ctx, `
		INSERT INTO device (gateway, id, name, icon, properties)
		VALUES ($1, $2, $3, $4, $5::jsonb)
		ON CONFLICT (gateway, id) DO UPDATE
		SET name = EXCLUDED.name, icon = EXCLUDED.icon, properties = EXCLUDED.properties;`,
		gateway, device.ID, device.Name, device.Icon, string(raw))
	return err
}

func (db *Database) DeleteDevice(ctx context.Context, gateway, id string) error {
	_, err := db.pool.Exec(ctx, `DELETE FROM device WHERE gateway = $1 AND id = $2`, gateway, id)
	return err
}
