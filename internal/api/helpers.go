package api

import (
	"context"
	"strings"

	"github.com/librarium/librarium-server/internal/domain"
)

// resolvePrincipal validates the Authorization header and resolves it to a
// live user. A missing or invalid token yields a nil principal, not an
// error: an unauthenticated context is valid for read-only queries, and
// gated mutations reject a nil principal themselves.
func (s *Server) resolvePrincipal(ctx context.Context, authHeader string) *domain.User {
	if authHeader == "" {
		return nil
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil
	}

	user, _, err := s.services.Auth.VerifyAccessToken(ctx, parts[1])
	if err != nil {
		s.logger.Debug("token rejected", "error", err)
		return nil
	}

	return user
}
