package staff

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hillcrest/hms/internal/platform/apperr"
	"github.com/hillcrest/hms/internal/platform/auth"
	"github.com/hillcrest/hms/internal/platform/metrics"
)

// SessionService issues, refreshes and revokes JWT sessions.
type SessionService struct {
	users       UserRepository
	tokens      *auth.TokenIssuer
	revocations auth.RevocationStore
	metrics     *metrics.Metrics
	logger      zerolog.Logger
}

func NewSessionService(users UserRepository, tokens *auth.TokenIssuer, revocations auth.RevocationStore, m *metrics.Metrics, logger zerolog.Logger) *SessionService {
	return &SessionService{users: users, tokens: tokens, revocations: revocations, metrics: m, logger: logger}
}

var errBadCredentials = apperr.Unauthorized("invalid username or password")

// Login checks the password and returns a token pair. Unknown users, wrong
// passwords and disabled accounts get the same answer.
func (s *SessionService) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		return nil, apperr.Validation("username and password are required")
	}

	u, err := s.users.GetByUsername(ctx, username)
	if err != nil && !apperr.Is(err, apperr.KindNotFound) {
		return nil, err
	}
	if u == nil || !u.IsActive || !auth.CheckPassword(u.PasswordHash, req.Password) {
		s.metrics.LoginAttempt(false)
		s.logger.Warn().Str("username", username).Msg("login rejected")
		return nil, errBadCredentials
	}

	pair, err := s.tokens.Issue(u.Principal())
	if err != nil {
		return nil, err
	}
	s.metrics.LoginAttempt(true)
	return &LoginResponse{TokenPair: pair, User: u.Profile()}, nil
}

// Refresh exchanges a refresh token for a new pair and revokes the old
// refresh token so it cannot be replayed.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error) {
	claims, err := s.tokens.Parse(strings.TrimSpace(refreshToken), auth.TokenTypeRefresh)
	if err != nil {
		return nil, apperr.Unauthorized("invalid refresh token")
	}
	if s.revocations != nil {
		revoked, err := s.revocations.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, err
		}
		if revoked {
			return nil, apperr.Unauthorized("refresh token has been revoked")
		}
	}

	u, err := s.users.GetByID(ctx, claims.Principal().ID)
	if err != nil && !apperr.Is(err, apperr.KindNotFound) {
		return nil, err
	}
	if u == nil || !u.IsActive {
		return nil, apperr.Unauthorized("account is no longer active")
	}

	pair, err := s.tokens.Issue(u.Principal())
	if err != nil {
		return nil, err
	}
	s.revoke(ctx, claims)
	return pair, nil
}

// Logout revokes the caller's access token and, when given, the matching
// refresh token.
func (s *SessionService) Logout(ctx context.Context, access *auth.Claims, refreshToken string) error {
	if access == nil {
		return apperr.Unauthorized("authentication required")
	}
	if s.revocations == nil {
		return nil
	}
	if err := s.revocations.Revoke(ctx, access.ID, expiry(access)); err != nil {
		return err
	}
	if refreshToken == "" {
		return nil
	}
	refresh, err := s.tokens.Parse(refreshToken, auth.TokenTypeRefresh)
	if err != nil {
		return apperr.Validation("invalid refresh token")
	}
	if refresh.Subject != access.Subject {
		return apperr.Forbidden("refresh token belongs to another user")
	}
	return s.revocations.Revoke(ctx, refresh.ID, expiry(refresh))
}

func (s *SessionService) Me(ctx context.Context, p auth.Principal) (*User, error) {
	u, err := s.users.GetByID(ctx, p.ID)
	if apperr.Is(err, apperr.KindNotFound) {
		return nil, apperr.Unauthorized("account no longer exists")
	}
	return u, err
}

func (s *SessionService) revoke(ctx context.Context, claims *auth.Claims) {
	if s.revocations == nil {
		return
	}
	if err := s.revocations.Revoke(ctx, claims.ID, expiry(claims)); err != nil {
		s.logger.Error().Err(err).Str("jti", claims.ID).Msg("revoke token failed")
	}
}

func expiry(c *auth.Claims) time.Time {
	if c.ExpiresAt == nil {
		return time.Now().Add(24 * time.Hour)
	}
	return c.ExpiresAt.Time
}
