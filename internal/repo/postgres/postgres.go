package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hamed0406/urlmonitor/internal/domain"
	"github.com/hamed0406/urlmonitor/internal/repo"
)

var _ repo.Store = (*Store)(nil)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS definitions (
  id              BIGSERIAL PRIMARY KEY,
  url             TEXT    NOT NULL UNIQUE,
  frequency       INTEGER NOT NULL CHECK (frequency > 0),
  expected_status INTEGER NOT NULL,
  expected_string TEXT    NULL
);

CREATE TABLE IF NOT EXISTS results (
  id           BIGSERIAL PRIMARY KEY,
  check_id     BIGINT      NOT NULL REFERENCES definitions(id) ON DELETE CASCADE,
  time_checked TIMESTAMPTZ NOT NULL,
  status_code  INTEGER     NOT NULL,
  state        TEXT        NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_results_check_time ON results (check_id, time_checked DESC);

CREATE TABLE IF NOT EXISTS notification_addresses (
  id            BIGSERIAL PRIMARY KEY,
  check_id      BIGINT NOT NULL REFERENCES definitions(id) ON DELETE CASCADE,
  email_address TEXT   NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_addresses_check ON notification_addresses (check_id);
`

const dropSQL = `
DROP TABLE IF EXISTS notification_addresses;
DROP TABLE IF EXISTS results;
DROP TABLE IF EXISTS definitions;
`

// Postgres error codes we translate into repo errors.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{pool: pool, log: log}, nil
}

// Migrate creates the schema; with dropAll every table is dropped first.
func (s *Store) Migrate(ctx context.Context, dropAll bool) error {
	if dropAll {
		s.log.Warn("postgres_drop_all")
		if _, err := s.pool.Exec(ctx, dropSQL); err != nil {
			return fmt.Errorf("drop schema: %w", err)
		}
	}
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// ---- DefinitionStore ----

const definitionCols = `id, url, frequency, expected_status, expected_string`

func scanDefinition(row pgx.Row) (domain.CheckDefinition, error) {
	var (
		d        domain.CheckDefinition
		expected *string
	)
	if err := row.Scan(&d.ID, &d.URL, &d.Frequency, &d.ExpectedStatus, &expected); err != nil {
		return d, err
	}
	if expected != nil {
		d.ExpectedString = *expected
	}
	return d, nil
}

func (s *Store) ListDefinitions(ctx context.Context, urlContains string) ([]domain.CheckDefinition, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+definitionCols+`
		   FROM definitions
		  WHERE ($1::text = '' OR strpos(url, $1::text) > 0)
		  ORDER BY id`, urlContains)
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
	d, err := scanDefinition(s.pool.QueryRow(ctx,
		`SELECT `+definitionCols+` FROM definitions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get definition: %w", err)
	}
	return &d, nil
}

func (s *Store) CreateDefinition(ctx context.Context, d *domain.CheckDefinition) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO definitions (url, frequency, expected_status, expected_string)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		d.URL, d.Frequency, d.ExpectedStatus, nullable(d.ExpectedString),
	).Scan(&d.ID)
	if pgCode(err) == codeUniqueViolation {
		return repo.ErrDuplicateURL
	}
	if err != nil {
		return fmt.Errorf("insert definition: %w", err)
	}
	return nil
}

func (s *Store) UpdateDefinition(ctx context.Context, d *domain.CheckDefinition) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE definitions
		    SET url = $2, frequency = $3, expected_status = $4, expected_string = $5
		  WHERE id = $1`,
		d.ID, d.URL, d.Frequency, d.ExpectedStatus, nullable(d.ExpectedString),
	)
	if pgCode(err) == codeUniqueViolation {
		return repo.ErrDuplicateURL
	}
	if err != nil {
		return fmt.Errorf("update definition: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteDefinition(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM definitions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete definition: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// ---- ResultStore ----

func (s *Store) SaveResult(ctx context.Context, r *domain.CheckResult) error {
	if r.TimeChecked.IsZero() {
		r.TimeChecked = time.Now().UTC()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO results (check_id, time_checked, status_code, state)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		r.CheckID, r.TimeChecked, r.StatusCode, string(r.State),
	).Scan(&r.ID)
	if pgCode(err) == codeForeignKeyViolation {
		return repo.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

func (s *Store) ListResults(ctx context.Context, checkID int64) ([]domain.CheckResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, check_id, time_checked, status_code, state
		   FROM results
		  WHERE ($1::bigint = 0 OR check_id = $1::bigint)
		  ORDER BY id`, checkID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var out []domain.CheckResult
	for rows.Next() {
		var (
			r     domain.CheckResult
			state string
		)
		if err := rows.Scan(&r.ID, &r.CheckID, &r.TimeChecked, &r.StatusCode, &state); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		r.State = domain.State(state)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) LatestResults(ctx context.Context, urlContains string) ([]domain.LatestResult, error) {
	rows, err := s.pool.Query(ctx, `
SELECT DISTINCT ON (d.id)
       d.id,
       d.url,
       d.frequency,
       d.expected_status,
       d.expected_string,
       r.state,
       r.time_checked
  FROM definitions d
  JOIN results r ON r.check_id = d.id
 WHERE ($1::text = '' OR strpos(d.url, $1::text) > 0)
 ORDER BY d.id, r.time_checked DESC, r.id DESC`, urlContains)
	if err != nil {
		return nil, fmt.Errorf("latest: %w", err)
	}
	defer rows.Close()

	var out []domain.LatestResult
	for rows.Next() {
		var (
			lr       domain.LatestResult
			expected *string
			state    string
		)
		if err := rows.Scan(&lr.ID, &lr.URL, &lr.Frequency, &lr.ExpectedStatus, &expected, &state, &lr.LastChecked); err != nil {
			return nil, fmt.Errorf("scan latest: %w", err)
		}
		if expected != nil {
			lr.ExpectedString = *expected
		}
		lr.LastState = domain.State(state)
		out = append(out, lr)
	}
	return out, rows.Err()
}

// ---- AddressStore ----

func (s *Store) ListAddresses(ctx context.Context, checkID int64) ([]domain.NotificationAddress, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, check_id, email_address
		   FROM notification_addresses
		  WHERE ($1::bigint = 0 OR check_id = $1::bigint)
		  ORDER BY id`, checkID)
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
	err := s.pool.QueryRow(ctx,
		`SELECT id, check_id, email_address FROM notification_addresses WHERE id = $1`, id,
	).Scan(&a.ID, &a.CheckID, &a.EmailAddress)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get address: %w", err)
	}
	return &a, nil
}

func (s *Store) CreateAddress(ctx context.Context, a *domain.NotificationAddress) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO notification_addresses (check_id, email_address)
		 VALUES ($1, $2)
		 RETURNING id`,
		a.CheckID, a.EmailAddress,
	).Scan(&a.ID)
	if pgCode(err) == codeForeignKeyViolation {
		return repo.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("insert address: %w", err)
	}
	return nil
}

func (s *Store) UpdateAddress(ctx context.Context, a *domain.NotificationAddress) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE notification_addresses SET check_id = $2, email_address = $3 WHERE id = $1`,
		a.ID, a.CheckID, a.EmailAddress,
	)
	if pgCode(err) == codeForeignKeyViolation {
		return repo.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update address: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteAddress(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM notification_addresses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete address: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *Store) Recipients(ctx context.Context, checkID int64) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT email_address FROM notification_addresses WHERE check_id = $1 ORDER BY id`, checkID)
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
		out = append(out, e)
	}
	return out, rows.Err()
}
