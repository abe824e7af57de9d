package principals

import "errors"

var (
	ErrNotFound         = errors.New("principal not found")
	ErrPasswordMismatch = errors.New("password mismatch")
	ErrLocked           = errors.New("principal locked")
)

// Verifier checks a presented username/password pair and resolves it to a
// Principal. Callers must not surface which of the failure modes occurred.
type Verifier interface {
	Verify(username, password string) (*Principal, error)
}

// RepoVerifier verifies credentials against a principal repository using
// bcrypt password hashes.
type RepoVerifier struct {
	repo Repo
}

var _ Verifier = (*RepoVerifier)(nil)

func NewRepoVerifier(repo Repo) *RepoVerifier {
	return &RepoVerifier{repo: repo}
}

func (v *RepoVerifier) Verify(username, password string) (*Principal, error) {
	principal, err := v.repo.GetByUsername(username)
	if err != nil || principal == nil {
		return nil, ErrNotFound
	}
	if principal.Locked {
		return nil, ErrLocked
	}
	if !CheckPasswordHash(password, principal.PasswordHash) {
		return nil, ErrPasswordMismatch
	}
	return principal, nil
}
