package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/hamed0406/urlmonitor/internal/domain"
	"github.com/hamed0406/urlmonitor/internal/repo"
)

var _ repo.Store = (*Store)(nil)

// Fixed-width UTC layout so timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS definitions (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	url             TEXT    NOT NULL UNIQUE,
	frequency       INTEGER NOT NULL CHECK (frequency > 0),
	expected_status INTEGER NOT NULL,
	expected_string TEXT    NULL
);

CREATE TABLE IF NOT EXISTS results (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	check_id     INTEGER NOT NULL,
	time_checked TEXT    NOT NULL,
	status_code  INTEGER NOT NULL,
	state        TEXT    NOT NULL,
	FOREIGN KEY(check_id) REFERENCES definitions(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_results_check_time ON results (check_id, time_checked DESC);

CREATE TABLE IF NOT EXISTS notification_addresses (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	check_id      INTEGER NOT NULL,
	email_address TEXT    NOT NULL,
	FOREIGN KEY(check_id) REFERENCES definitions(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_addresses_check ON notification_addresses (check_id);
`

const dropSQL = `
DROP TABLE IF EXISTS notification_addresses;
DROP TABLE IF EXISTS results;
DROP TABLE IF EXISTS definitions;
`

// Store implements repo.Store on an embedded SQLite database.
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

// New opens (or creates) the database file at path with foreign keys enabled.
// sqlite allows a single writer, so the pool is limited to one connection and
// concurrent monitor tasks queue on it.
func New(ctx context.Context, path string, log *zap.Logger) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

// Migrate creates the schema; with dropAll every table is dropped first.
func (s *Store) Migrate(ctx context.Context, dropAll bool) error {
	if dropAll {
		s.log.Warn("sqlite_drop_all")
		if _, err := s.db.ExecContext(ctx, dropSQL); err != nil {
			return fmt.Errorf("drop schema: %w", err)
		}
	}
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

func sqliteCode(err error) int {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code()
	}
	return 0
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t.UTC()
}

func affected(res sql.Result) int64 {
	n, _ := res.RowsAffected()
	return n
}

// ---- DefinitionStore ----

type scanner interface {
	Scan(dest ...any) error
}

const definitionCols = `id, url, frequency, expected_status, expected_string`

func scanDefinition(row scanner) (domain.CheckDefinition, error) {
	var (
		d        domain.CheckDefinition
		expected sql.NullString
	)
	err := row.Scan(&d.ID, &d.URL, &d.Frequency, &d.ExpectedStatus, &expected)
	d.ExpectedString = expected.String
	return d, err
}

func (s *Store) ListDefinitions(ctx context.Context, urlContains string) ([]domain.CheckDefinition, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+definitionCols+` FROM definitions
		  WHERE (? = '' OR instr(url, ?) > 0)
		  ORDER BY id`, urlContains, urlContains)
	if err != nil {
		return nil, fmt.Errorf("list definitions: %w", err)
	}
	defer rows.Close()

	var out []domain.CheckDefinition
	for rows.Next() {
		d, err := scanDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan definition: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) GetDefinition(ctx context.Context, id int64) (*domain.CheckDefinition, error) {
	d, err := scanDefinition(s.db.QueryRowContext(ctx,
		`SELECT `+definitionCols+` FROM definitions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get definition: %w", err)
	}
	return &d, nil
}

func (s *Store) CreateDefinition(ctx context.Context, d *domain.CheckDefinition) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO definitions (url, frequency, expected_status, expected_string) VALUES (?, ?, ?, ?)`,
		d.URL, d.Frequency, d.ExpectedStatus, nullable(d.ExpectedString))
	if sqliteCode(err) == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return repo.ErrDuplicateURL
	}
	if err != nil {
		return fmt.Errorf("insert definition: %w", err)
	}
	d.ID, err = res.LastInsertId()
	return err
}

func (s *Store) UpdateDefinition(ctx context.Context, d *domain.CheckDefinition) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE definitions SET url = ?, frequency = ?, expected_status = ?, expected_string = ? WHERE id = ?`,
		d.URL, d.Frequency, d.ExpectedStatus, nullable(d.ExpectedString), d.ID)
	if sqliteCode(err) == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return repo.ErrDuplicateURL
	}
	if err != nil {
		return fmt.Errorf("update definition: %w", err)
	}
	if affected(res) == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteDefinition(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM definitions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete definition: %w", err)
	}
	if affected(res) == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// ---- ResultStore ----

func (s *Store) SaveResult(ctx context.Context, r *domain.CheckResult) error {
	if r.TimeChecked.IsZero() {
		r.TimeChecked = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO results (check_id, time_checked, status_code, state) VALUES (?, ?, ?, ?)`,
		r.CheckID, r.TimeChecked.UTC().Format(timeLayout), r.StatusCode, string(r.State))
	if sqliteCode(err) == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY {
		return repo.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	r.ID, err = res.LastInsertId()
	return err
}

func (s *Store) ListResults(ctx context.Context, checkID int64) ([]domain.CheckResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, check_id, time_checked, status_code, state FROM results
		  WHERE (? = 0 OR check_id = ?)
		  ORDER BY id`, checkID, checkID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var out []domain.CheckResult
	for rows.Next() {
		var (
			r           domain.CheckResult
			checked, st string
		)
		if err := rows.Scan(&r.ID, &r.CheckID, &checked, &r.StatusCode, &st); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		r.TimeChecked = parseTime(checked)
		r.State = domain.State(st)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) LatestResults(ctx context.Context, urlContains string) ([]domain.LatestResult, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT d.id, d.url, d.frequency, d.expected_status, d.expected_string, r.state, r.time_checked
  FROM definitions d
  JOIN results r ON r.id = (
        SELECT id FROM results
         WHERE check_id = d.id
         ORDER BY time_checked DESC, id DESC
         LIMIT 1)
 WHERE (? = '' OR instr(d.url, ?) > 0)
 ORDER BY d.id`, urlContains, urlContains)
	if err != nil {
		return nil, fmt.Errorf("latest: %w", err)
	}
	defer rows.Close()

	var out []domain.LatestResult
	for rows.Next() {
		var (
			lr          domain.LatestResult
			expected    sql.NullString
			st, checked string
		)
		if err := rows.Scan(&lr.ID, &lr.URL, &lr.Frequency, &lr.ExpectedStatus, &expected, &st, &checked); err != nil {
			return nil, fmt.Errorf("scan latest: %w", err)
		}
		lr.ExpectedString = expected.String
		lr.LastState = domain.State(st)
		lr.LastChecked = parseTime(checked)
		out = append(out, lr)
	}
	return out, rows.Err()
}

// ---- AddressStore ----

func (s *Store) ListAddresses(ctx context.Context, checkID int64) ([]domain.NotificationAddress, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, check_id, email_address FROM notification_addresses
		  WHERE (? = 0 OR check_id = ?)
		  ORDER BY id`, checkID, checkID)
	if err != nil {
		return nil, fmt.Errorf("list addresses: %w", err)
	}
	defer rows.Close()

	var out []domain.NotificationAddress
	for rows.Next() {
		var a domain.NotificationAddress
		if err := rows.Scan(&a.ID, &a.CheckID, &a.EmailAddress); err != nil {
			return nil, fmt.Errorf("scan address: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) GetAddress(ctx context.Context, id int64) (*domain.NotificationAddress, error) {
	var a domain.NotificationAddress
	err := s.db.QueryRowContext(ctx,
		`SELECT id, check_id, email_address FROM notification_addresses WHERE id = ?`, id,
	).Scan(&a.ID, &a.CheckID, &a.EmailAddress)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get address: %w", err)
	}
	return &a, nil
}

func (s *Store) CreateAddress(ctx context.Context, a *domain.NotificationAddress) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO notification_addresses (check_id, email_address) VALUES (?, ?)`,
		a.CheckID, a.EmailAddress)
	if sqliteCode(err) == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY {
		return repo.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("insert address: %w", err)
	}
	a.ID, err = res.LastInsertId()
	return err
}

func (s *Store) UpdateAddress(ctx context.Context, a *domain.NotificationAddress) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notification_addresses SET check_id = ?, email_address = ? WHERE id = ?`,
		a.CheckID, a.EmailAddress, a.ID)
	if sqliteCode(err) == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY {
		return repo.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update address: %w", err)
	}
	if affected(res) == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteAddress(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notification_addresses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete address: %w", err)
	}
	if affected(res) == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *Store) Recipients(ctx context.Context, checkID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT email_address FROM notification_addresses WHERE check_id = ? ORDER BY id`, checkID)
	if err != nil {
		return nil, fmt.Errorf("recipients: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var e string
		if err := rows.Scan(&e); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		out = append(out, strings.TrimSpace(e))
	}
	return out, rows.Err()
}
