package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

const (
	settingAPIKey = "gemini_api_key"
	settingModel  = "gemini_model"
)

// Settings are the two per-owner configuration scalars.
type Settings struct {
	APIKey string `json:"api_key"`
	Model  string `json:"model"`
}

type SettingsRepo struct {
	DB       *sql.DB
	Defaults Settings
}

func NewSettingsRepo(db *sql.DB, defaults Settings) *SettingsRepo {
	return &SettingsRepo{DB: db, Defaults: defaults}
}

// Get returns the owner's settings with unset fields taken from Defaults.
func (r *SettingsRepo) Get(ctx context.Context, ownerID int64) (Settings, error) {
	rows, err := r.DB.QueryContext(ctx, `select name, value from settings where owner_id = $1`, ownerID)
	if err != nil {
		return Settings{}, err
	}
	defer rows.Close()

	s := r.Defaults
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return Settings{}, err
		}
		switch name {
		case settingAPIKey:
			if value != "" {
				s.APIKey = value
			}
		case settingModel:
			if value != "" {
				s.Model = value
			}
		}
	}
	return s, rows.Err()
}

// Save stores both scalars, trimmed.
func (r *SettingsRepo) Save(ctx context.Context, ownerID int64, s Settings) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	const q = `
insert into settings (owner_id, name, value) values ($1,$2,$3)
on conflict (owner_id, name) do update set value = excluded.value`
	for name, value := range map[string]string{
		settingAPIKey: strings.TrimSpace(s.APIKey),
		settingModel:  strings.TrimSpace(s.Model),
	} {
		if _, err := tx.ExecContext(ctx, q, ownerID, name, value); err != nil {
			return fmt.Errorf("settings %s: %w", name, err)
		}
	}
	return tx.Commit()
}
