package cas

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/jrsteele09/go-cas-server/principals"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// BootstrapAdmin makes sure an administrator principal exists so a fresh
// deployment can be logged into. On first creation it returns the
// generated password; once the principal exists it returns "".
func (s *Service) BootstrapAdmin(username string) (generatedPassword string, err error) {
	if username == "" {
		return "", errors.New("[BootstrapAdmin] username cannot be empty")
	}

	if _, err := s.repos.Principals.GetByUsername(username); err == nil {
		return "", nil
	}

	generatedPassword, err = generatePassword()
	if err != nil {
		return "", errors.Wrap(err, "[BootstrapAdmin] generate password")
	}

	passwordHash, err := principals.HashPassword(generatedPassword)
	if err != nil {
		return "", errors.Wrap(err, "[BootstrapAdmin] hash password")
	}

	if err := s.repos.Principals.Upsert(&principals.Principal{
		Username:     username,
		PasswordHash: passwordHash,
		DateJoined:   s.nowTime(),
	}); err != nil {
		return "", errors.Wrap(err, "[BootstrapAdmin] upsert principal")
	}

	log.Info().Str("username", username).Msg("bootstrapped administrator principal")
	return generatedPassword, nil
}

func generatePassword() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
