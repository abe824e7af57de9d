package session

import (
	"database/sql"
	"time"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"
)

// PostgresRepo backs the central session store with Postgres so sessions
// survive restarts and are visible to every server instance.
type PostgresRepo struct {
	db *sql.DB
}

var _ Repo = (*PostgresRepo)(nil)

const createSessionsTable = `
CREATE TABLE IF NOT EXISTS cas_sessions (
  id           VARCHAR(64) PRIMARY KEY,
  principal_id VARCHAR(64)  NOT NULL,
  username     VARCHAR(200) NOT NULL,
  email        VARCHAR(200),
  created_at   timestamptz  NOT NULL,
  expires_at   timestamptz  NOT NULL
)`

// NewPostgresRepo opens the connection and ensures the sessions table
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
	if _, err := db.Exec(createSessionsTable); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "[NewPostgresRepo] create sessions table")
	}
	return &PostgresRepo{db: db}, nil
}

func (r *PostgresRepo) Close() error {
	return r.db.Close()
}

func (r *PostgresRepo) Upsert(sessionID string, session *Session) error {
	if sessionID == "" {
		return errors.New("sessionID cannot be empty")
	}
	if session == nil {
		return errors.New("session cannot be nil")
	}

	_, err := r.db.Exec(`
		INSERT INTO cas_sessions (id, principal_id, username, email, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET principal_id = EXCLUDED.principal_id,
		    username     = EXCLUDED.username,
		    email        = EXCLUDED.email,
		    expires_at   = EXCLUDED.expires_at`,
		sessionID, session.PrincipalID, session.Username, session.Email,
		session.CreatedAt, session.ExpiresAt)
	return errors.Wrap(err, "[PostgresRepo.Upsert] exec")
}

func (r *PostgresRepo) Get(sessionID string) (*Session, error) {
	if sessionID == "" {
		return nil, errors.New("sessionID cannot be empty")
	}

	var (
		session Session
		email   sql.NullString
	)
	err := r.db.QueryRow(`
		SELECT id, principal_id, username, email, created_at, expires_at
		FROM cas_sessions WHERE id = $1`, sessionID).
		Scan(&session.ID, &session.PrincipalID, &session.Username, &email,
			&session.CreatedAt, &session.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, errors.New("session not found")
	}
	if err != nil {
		return nil, errors.Wrap(err, "[PostgresRepo.Get] query")
	}
	session.Email = email.String
	return &session, nil
}

func (r *PostgresRepo) Delete(sessionID string) error {
	if sessionID == "" {
		return errors.New("sessionID cannot be empty")
	}

	_, err := r.db.Exec(`DELETE FROM cas_sessions WHERE id = $1`, sessionID)
	return errors.Wrap(err, "[PostgresRepo.Delete] exec")
}

func (r *PostgresRepo) DeleteExpired(before time.Time) error {
	_, err := r.db.Exec(`DELETE FROM cas_sessions WHERE expires_at < $1`, before)
	return errors.Wrap(err, "[PostgresRepo.DeleteExpired] exec")
}
