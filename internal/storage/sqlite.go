package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "digestbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA foreign_keys = ON")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- Recipients ----

func (s *sqliteStore) UpsertRecipient(ctx context.Context, r Recipient) error {
	// Keep an existing schedule; registration must not clear it.
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO recipients(id, chat_id) VALUES(?,?)
		 ON CONFLICT(id) DO UPDATE SET chat_id=excluded.chat_id`,
		r.ID, r.ChatID,
	)
	return err
}

func (s *sqliteStore) GetRecipient(ctx context.Context, id int64) (Recipient, bool, error) {
	var r Recipient
	var schedule sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, chat_id, schedule FROM recipients WHERE id = ?`, id,
	).Scan(&r.ID, &r.ChatID, &schedule)
	if errors.Is(err, sql.ErrNoRows) {
		return Recipient{}, false, nil
	}
	if err != nil {
		return Recipient{}, false, err
	}
	r.Schedule = schedule.String
	return r, true, nil
}

func (s *sqliteStore) SetSchedule(ctx context.Context, id int64, schedule string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE recipients SET schedule = ? WHERE id = ?`, nullStr(schedule), id)
	return err
}

func (s *sqliteStore) ListScheduled(ctx context.Context) ([]Recipient, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, schedule FROM recipients WHERE schedule IS NOT NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Recipient
	for rows.Next() {
		var r Recipient
		var schedule sql.NullString
		if err := rows.Scan(&r.ID, &r.ChatID, &schedule); err != nil {
			return nil, err
		}
		r.Schedule = schedule.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// ---- Sources ----

func (s *sqliteStore) AddSource(ctx context.Context, src Source) (int64, error) {
	at := src.AddedAt
	if at.IsZero() {
		at = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sources(owner_id, kind, location, added_at) VALUES(?,?,?,?)`,
		src.OwnerID, src.Kind, src.Location, at.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *sqliteStore) ListSources(ctx context.Context, ownerID int64) ([]Source, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, kind, location, added_at FROM sources
		 WHERE owner_id = ? ORDER BY added_at DESC, id DESC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Source
	for rows.Next() {
		var src Source
		var at string
		if err := rows.Scan(&src.ID, &src.OwnerID, &src.Kind, &src.Location, &at); err != nil {
			return nil, err
		}
		src.AddedAt, _ = time.Parse(time.RFC3339, at)
		out = append(out, src)
	}
	return out, rows.Err()
}

func (s *sqliteStore) DeleteSource(ctx context.Context, id, ownerID int64) error {
	// Owner mismatch matches zero rows: a silent no-op by contract.
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM sources WHERE id = ? AND owner_id = ?`, id, ownerID)
	return err
}

// ---- Interests ----

func (s *sqliteStore) AddInterest(ctx context.Context, in Interest) (int64, error) {
	if len([]rune(in.Text)) > MaxInterestLen {
		return 0, ErrInterestTooLong
	}
	at := in.AddedAt
	if at.IsZero() {
		at = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO interests(owner_id, text, added_at) VALUES(?,?,?)`,
		in.OwnerID, in.Text, at.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *sqliteStore) ListInterests(ctx context.Context, ownerID int64) ([]Interest, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, text, added_at FROM interests
		 WHERE owner_id = ? ORDER BY added_at DESC, id DESC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Interest
	for rows.Next() {
		var in Interest
		var at string
		if err := rows.Scan(&in.ID, &in.OwnerID, &in.Text, &at); err != nil {
			return nil, err
		}
		in.AddedAt, _ = time.Parse(time.RFC3339, at)
		out = append(out, in)
	}
	return out, rows.Err()
}

func (s *sqliteStore) DeleteInterest(ctx context.Context, id, ownerID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM interests WHERE id = ? AND owner_id = ?`, id, ownerID)
	return err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
