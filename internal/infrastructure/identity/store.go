package identity

import (
	"context"
	"fmt"
	"sync"

	"lumecast/internal/core/domain"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// Store derives the local user record from the backend-issued access token.
// The token is parsed without signature verification: the backend signed it
// and every API call it authorizes is re-checked server side, so the client
// only needs to read its own claims. The record is cached after the first
// parse.
type Store struct {
	accessToken string
	logger      *zap.SugaredLogger

	mu     sync.Mutex
	cached *domain.User
}

func NewStore(accessToken string, logger *zap.SugaredLogger) *Store {
	return &Store{
		accessToken: accessToken,
		logger:      logger,
	}
}

type tokenClaims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// CurrentUser returns the identity encoded in the access token.
func (s *Store) CurrentUser(ctx context.Context) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil {
		return *s.cached, nil
	}

	if s.accessToken == "" {
		return domain.User{}, fmt.Errorf("%w: no access token configured", domain.ErrNotAuthorized)
	}

	claims := &tokenClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(s.accessToken, claims); err != nil {
		return domain.User{}, fmt.Errorf("%w: malformed access token: %v", domain.ErrNotAuthorized, err)
	}
	if claims.Subject == "" {
		return domain.User{}, fmt.Errorf("%w: access token missing subject", domain.ErrNotAuthorized)
	}
	if claims.Role == "" {
		return domain.User{}, fmt.Errorf("%w: access token missing role claim", domain.ErrNotAuthorized)
	}

	user := domain.User{
		ID:       domain.UserID(claims.Subject),
		Username: claims.Username,
		Role:     domain.UserRole(claims.Role),
	}
	s.cached = &user

	s.logger.Debugw("identity resolved from access token",
		"user_id", user.ID,
		"role", user.Role,
	)
	return user, nil
}
