package service

import (
	"context"
	"encoding/hex"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/librarium/librarium-server/internal/auth"
	domainerrors "github.com/librarium/librarium-server/internal/errors"
	"github.com/librarium/librarium-server/internal/store"
	"github.com/librarium/librarium-server/internal/validation"
)

func setupAuthService(t *testing.T) (*AuthService, *store.Store) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s, err := store.New(t.TempDir(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck // Test cleanup

	key, err := auth.LoadOrGenerateKey(t.TempDir())
	require.NoError(t, err)

	tokenService, err := auth.NewTokenService(hex.EncodeToString(key), 24*time.Hour)
	require.NoError(t, err)

	return NewAuthService(s, tokenService, validation.New(), logger), s
}

func TestCreateUser(t *testing.T) {
	svc, s := setupAuthService(t)
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, CreateUserRequest{
		Username:      "reader",
		Password:      "correct horse battery staple",
		FavoriteGenre: "classic",
	})
	require.NoError(t, err)
	assert.Equal(t, "reader", user.Username)
	assert.Equal(t, "classic", user.FavoriteGenre)
	// Password hash never leaves the service.
	assert.Empty(t, user.PasswordHash)

	// Stored record keeps the hash.
	stored, err := s.Users.Get(ctx, user.ID)
	require.NoError(t, err)
	assert.Contains(t, stored.PasswordHash, "$argon2id$")
}

func TestCreateUser_DuplicateUsername(t *testing.T) {
	svc, _ := setupAuthService(t)
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, CreateUserRequest{
		Username: "reader",
		Password: "correct horse battery staple",
	})
	require.NoError(t, err)

	_, err = svc.CreateUser(ctx, CreateUserRequest{
		Username: "reader",
		Password: "another password entirely",
	})
	require.Error(t, err)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrValidation))
}

func TestCreateUser_DuplicateUsernameCaseInsensitive(t *testing.T) {
	svc, _ := setupAuthService(t)
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, CreateUserRequest{
		Username: "Reader",
		Password: "correct horse battery staple",
	})
	require.NoError(t, err)

	_, err = svc.CreateUser(ctx, CreateUserRequest{
		Username: "READER",
		Password: "another password entirely",
	})
	require.Error(t, err)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrValidation))
}

func TestCreateUser_ShortPasswordRejected(t *testing.T) {
	svc, _ := setupAuthService(t)

	_, err := svc.CreateUser(context.Background(), CreateUserRequest{
		Username: "reader",
		Password: "short",
	})
	require.Error(t, err)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrValidation))
}

func TestLogin_Succeeds(t *testing.T) {
	svc, _ := setupAuthService(t)
	ctx := context.Background()

	created, err := svc.CreateUser(ctx, CreateUserRequest{
		Username: "reader",
		Password: "correct horse battery staple",
	})
	require.NoError(t, err)

	resp, err := svc.Login(ctx, LoginRequest{
		Username: "reader",
		Password: "correct horse battery staple",
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Token)
	assert.Equal(t, created.ID, resp.User.ID)
	assert.Empty(t, resp.User.PasswordHash)

	// The issued token resolves back to the same user.
	user, claims, err := svc.VerifyAccessToken(ctx, resp.Token)
	require.NoError(t, err)
	assert.Equal(t, created.ID, user.ID)
	assert.Equal(t, "reader", claims.Username)
}

func TestLogin_WrongPasswordAndUnknownUserAreIndistinguishable(t *testing.T) {
	svc, _ := setupAuthService(t)
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, CreateUserRequest{
		Username: "reader",
		Password: "correct horse battery staple",
	})
	require.NoError(t, err)

	_, wrongPassErr := svc.Login(ctx, LoginRequest{
		Username: "reader",
		Password: "wrong password",
	})
	require.Error(t, wrongPassErr)
	assert.True(t, domainerrors.Is(wrongPassErr, domainerrors.ErrInvalidCredentials))

	_, unknownUserErr := svc.Login(ctx, LoginRequest{
		Username: "nobody",
		Password: "whatever password",
	})
	require.Error(t, unknownUserErr)
	assert.True(t, domainerrors.Is(unknownUserErr, domainerrors.ErrInvalidCredentials))

	// Same message, no username enumeration.
	assert.Equal(t, wrongPassErr.Error(), unknownUserErr.Error())
}

func TestVerifyAccessToken_GarbageToken(t *testing.T) {
	svc, _ := setupAuthService(t)

	_, _, err := svc.VerifyAccessToken(context.Background(), "not-a-token")
	assert.Error(t, err)
}
