package profile

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/netwatch-hq/netwatch/pkg/config"
)

// ErrNotFound is returned when a named or active profile does not exist.
var ErrNotFound = errors.New("profile not found")

// Profile is one named deployment: its own router/hub/snmp config, its own
// API listen address, and (via config.DataDir) its own knowledge-base file.
type Profile struct {
	ID        int64
	Name      string
	ListenAddr string
	Config    config.Config
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store provides profile CRUD plus the single-active-profile switch.
type Store interface {
	Get(ctx context.Context, id int64) (*Profile, error)
	GetByName(ctx context.Context, name string) (*Profile, error)
	GetActive(ctx context.Context) (*Profile, error)
	List(ctx context.Context) ([]*Profile, error)
	Create(ctx context.Context, p *Profile) error
	Update(ctx context.Context, p *Profile) error
	SetActive(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error
}

// Profiles returns a Store backed by db.
func (db *DB) Profiles() Store { return &store{db: db} }

type store struct{ db *DB }

func scanProfile(row interface{ Scan(...any) error }) (*Profile, error) {
	p := &Profile{}
	var configJSON, createdAt, updatedAt string
	if err := row.Scan(&p.ID, &p.Name, &p.ListenAddr, &configJSON, &p.IsActive, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(configJSON), &p.Config); err != nil {
		return nil, fmt.Errorf("decode profile config: %w", err)
	}
	p.CreatedAt, _ = time.Parse(time.DateTime, createdAt)
	p.UpdatedAt, _ = time.Parse(time.DateTime, updatedAt)
	return p, nil
}

func (s *store) Get(ctx context.Context, id int64) (*Profile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, listen_addr, config_json, is_active, created_at, updated_at
		FROM profiles WHERE id = ?`, id)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

func (s *store) GetByName(ctx context.Context, name string) (*Profile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, listen_addr, config_json, is_active, created_at, updated_at
		FROM profiles WHERE name = ?`, name)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

func (s *store) GetActive(ctx context.Context) (*Profile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, listen_addr, config_json, is_active, created_at, updated_at
		FROM profiles WHERE is_active = 1 LIMIT 1`)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

func (s *store) List(ctx context.Context) ([]*Profile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, listen_addr, config_json, is_active, created_at, updated_at
		FROM profiles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *store) Create(ctx context.Context, p *Profile) error {
	configJSON, err := json.Marshal(p.Config)
	if err != nil {
		return fmt.Errorf("encode profile config: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (name, listen_addr, config_json, is_active)
		VALUES (?, ?, ?, ?)`, p.Name, p.ListenAddr, string(configJSON), p.IsActive)
	if err != nil {
		return fmt.Errorf("create profile: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = id
	return nil
}

func (s *store) Update(ctx context.Context, p *Profile) error {
	configJSON, err := json.Marshal(p.Config)
	if err != nil {
		return fmt.Errorf("encode profile config: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE profiles SET name = ?, listen_addr = ?, config_json = ?, updated_at = datetime('now')
		WHERE id = ?`, p.Name, p.ListenAddr, string(configJSON), p.ID)
	return err
}

// SetActive deactivates every profile and activates id, so exactly one
// profile is ever active at a time.
func (s *store) SetActive(ctx context.Context, id int64) error {
	return s.db.Tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE profiles SET is_active = 0`); err != nil {
			return err
		}
		result, err := tx.ExecContext(ctx, `UPDATE profiles SET is_active = 1 WHERE id = ?`, id)
		if err != nil {
			return err
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *store) Delete(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM profiles WHERE id = ?`, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
