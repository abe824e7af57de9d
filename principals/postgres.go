package principals

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
)

// PostgresRepo is the production principal directory.
type PostgresRepo struct {
	db *sql.DB
}

var _ Repo = (*PostgresRepo)(nil)

const createPrincipalsTable = `
CREATE TABLE IF NOT EXISTS cas_principals (
  id            VARCHAR(64) PRIMARY KEY,
  username      VARCHAR(200) NOT NULL UNIQUE,
  email         VARCHAR(200),
  password_hash VARCHAR(200) NOT NULL,
  first_name    VARCHAR(200),
  last_name     VARCHAR(200),
  date_joined   timestamptz  NOT NULL,
  last_login    timestamptz,
  locked        boolean      NOT NULL DEFAULT false
)`

// NewPostgresRepo opens the connection and ensures the principals table
// exists. The caller owns closing the returned repo.
func NewPostgresRepo(databaseURL string) (*PostgresRepo, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "[NewPostgresRepo] open database")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "[NewPostgresRepo] ping database")
	}
	if _, err := db.Exec(createPrincipalsTable); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "[NewPostgresRepo] create principals table")
	}
	return &PostgresRepo{db: db}, nil
}

func (r *PostgresRepo) Close() error {
	return r.db.Close()
}

func (r *PostgresRepo) Upsert(principal *Principal) error {
	if principal == nil {
		return errors.New("principal cannot be nil")
	}
	if principal.Username == "" {
		return errors.New("username cannot be empty")
	}
	if principal.ID == "" {
		principal.ID = uuid.New().String()
	}
	if principal.DateJoined.IsZero() {
		principal.DateJoined = time.Now()
	}

	_, err := r.db.Exec(`
		INSERT INTO cas_principals
		  (id, username, email, password_hash, first_name, last_name, date_joined, last_login, locked)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (username) DO UPDATE
		SET email         = EXCLUDED.email,
		    password_hash = EXCLUDED.password_hash,
		    first_name    = EXCLUDED.first_name,
		    last_name     = EXCLUDED.last_name,
		    locked        = EXCLUDED.locked`,
		principal.ID, principal.Username, principal.Email, principal.PasswordHash,
		principal.FirstName, principal.LastName, principal.DateJoined,
		nullTime(principal.LastLogin), principal.Locked)
	return errors.Wrap(err, "[PostgresRepo.Upsert] exec")
}

func (r *PostgresRepo) Delete(username string) error {
	if username == "" {
		return errors.New("username cannot be empty")
	}

	result, err := r.db.Exec(`DELETE FROM cas_principals WHERE username = $1`, username)
	if err != nil {
		return errors.Wrap(err, "[PostgresRepo.Delete] exec")
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return errors.New("not found")
	}
	return nil
}

func (r *PostgresRepo) GetByUsername(username string) (*Principal, error) {
	return r.getWhere(`username = $1`, username)
}

func (r *PostgresRepo) GetByID(id string) (*Principal, error) {
	return r.getWhere(`id = $1`, id)
}

func (r *PostgresRepo) getWhere(where string, arg any) (*Principal, error) {
	row := r.db.QueryRow(`
		SELECT id, username, email, password_hash, first_name, last_name,
		       date_joined, last_login, locked
		FROM cas_principals WHERE `+where, arg)
	principal, err := scanPrincipal(row)
	if err == sql.ErrNoRows {
		return nil, errors.New("not found")
	}
	if err != nil {
		return nil, errors.Wrap(err, "[PostgresRepo.getWhere] scan")
	}
	return principal, nil
}

func (r *PostgresRepo) List(offset, limit int) ([]*Principal, error) {
	rows, err := r.db.Query(`
		SELECT id, username, email, password_hash, first_name, last_name,
		       date_joined, last_login, locked
		FROM cas_principals ORDER BY username OFFSET $1 LIMIT $2`, offset, limit)
	if err != nil {
		return nil, errors.Wrap(err, "[PostgresRepo.List] query")
	}
	defer rows.Close()

	var result []*Principal
	for rows.Next() {
		principal, err := scanPrincipal(rows)
		if err != nil {
			return nil, errors.Wrap(err, "[PostgresRepo.List] scan")
		}
		result = append(result, principal)
	}
	return result, errors.Wrap(rows.Err(), "[PostgresRepo.List] rows")
}

func (r *PostgresRepo) SetLocked(username string, locked bool) error {
	_, err := r.db.Exec(`UPDATE cas_principals SET locked = $2 WHERE username = $1`, username, locked)
	return errors.Wrap(err, "[PostgresRepo.SetLocked] exec")
}

func (r *PostgresRepo) SetLastLogin(username string) error {
	_, err := r.db.Exec(`UPDATE cas_principals SET last_login = now() WHERE username = $1`, username)
	return errors.Wrap(err, "[PostgresRepo.SetLastLogin] exec")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPrincipal(row rowScanner) (*Principal, error) {
	var (
		principal Principal
		email     sql.NullString
		firstName sql.NullString
		lastName  sql.NullString
		lastLogin sql.NullTime
	)
	err := row.Scan(&principal.ID, &principal.Username, &email, &principal.PasswordHash,
		&firstName, &lastName, &principal.DateJoined, &lastLogin, &principal.Locked)
	if err != nil {
		return nil, err
	}
	principal.Email = email.String
	principal.FirstName = firstName.String
	principal.LastName = lastName.String
	principal.LastLogin = lastLogin.Time
	return &principal, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
