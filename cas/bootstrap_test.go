package cas_test

import (
	"testing"

	"github.com/jrsteele09/go-cas-server/cas"
	"github.com/jrsteele09/go-cas-server/principals"
	"github.com/jrsteele09/go-cas-server/principals/repofake"
	"github.com/jrsteele09/go-cas-server/session"
	"github.com/jrsteele09/go-cas-server/ticket"
	"github.com/stretchr/testify/require"
)

func TestBootstrapAdminCreatesPrincipalOnce(t *testing.T) {
	principalRepo := repofake.NewFakePrincipalRepo()
	service, err := cas.NewService(
		cas.Repos{Principals: principalRepo, Sessions: session.NewInMemoryRepo()},
		principals.NewRepoVerifier(principalRepo),
		ticket.NewMemoryStore(testTTL),
	)
	require.NoError(t, err)

	password, err := service.BootstrapAdmin("admin")
	require.NoError(t, err)
	require.NotEmpty(t, password)

	admin, err := principalRepo.GetByUsername("admin")
	require.NoError(t, err)
	require.True(t, principals.CheckPasswordHash(password, admin.PasswordHash))

	// Second run is a no-op: the password is only revealed at creation.
	again, err := service.BootstrapAdmin("admin")
	require.NoError(t, err)
	require.Empty(t, again)
}

func TestBootstrapAdminRequiresUsername(t *testing.T) {
	principalRepo := repofake.NewFakePrincipalRepo()
	service, err := cas.NewService(
		cas.Repos{Principals: principalRepo, Sessions: session.NewInMemoryRepo()},
		principals.NewRepoVerifier(principalRepo),
		ticket.NewMemoryStore(testTTL),
	)
	require.NoError(t, err)

	_, err = service.BootstrapAdmin("")
	require.Error(t, err)
}
