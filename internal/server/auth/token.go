package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/ttm0z/stock-analyzer-sub001/internal/common"
	"github.com/ttm0z/stock-analyzer-sub001/internal/logging"
	"github.com/ttm0z/stock-analyzer-sub001/internal/server/cache"
	"github.com/ttm0z/stock-analyzer-sub001/internal/server/config"
	"github.com/ttm0z/stock-analyzer-sub001/internal/server/models"
)

// RevokedTokensSet is the cache set holding revoked token ids.
const RevokedTokensSet = "revoked_tokens"

var signingMethod = jwt.SigningMethodHS256

// TokenService issues and verifies access tokens. The signing secret is
// copied at construction and never changes afterwards.
type TokenService struct {
	secret   []byte
	ttl      time.Duration
	skew     time.Duration
	failOpen bool

	cache  cache.Cache
	parser *jwt.Parser
	log    logging.Logger
	now    func() time.Time
}

// Option customizes a TokenService.
type Option func(*TokenService)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *TokenService) { s.now = now }
}

func NewTokenService(cfg *config.Config, c cache.Cache, log logging.Logger, opts ...Option) *TokenService {
	s := &TokenService{
		secret:   []byte(cfg.SecretKey),
		ttl:      cfg.TokenTTL,
		skew:     cfg.ClockSkew,
		failOpen: cfg.RevocationFailOpen,
		cache:    c,
		// Time-based claims are checked in Verify with our own clock and
		// second-granularity rules.
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{signingMethod.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
		log: log.With("module", "tokens"),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TTL returns the lifetime of issued tokens.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Issue signs a new token for user. It does not create a session.
func (s *TokenService) Issue(user *models.User) (string, *Claims, error) {
	return s.IssueForSession(user, "")
}

// IssueForSession signs a token bound to sessionID.
func (s *TokenService) IssueForSession(user *models.User, sessionID string) (string, *Claims, error) {
	now := s.now().UTC().Truncate(time.Second)

	claims := &Claims{
		UserID:    user.ID,
		Username:  user.UserName,
		Email:     user.Email,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	raw, err := jwt.NewWithClaims(signingMethod, claims).SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return raw, claims, nil
}

// Verify checks signature, expiry and revocation, in that order, and returns
// the claims unchanged.
func (s *TokenService) Verify(ctx context.Context, raw string) (*Claims, error) {
	claims, err := s.parse(raw)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if claims.IssuedAt != nil && claims.IssuedAt.After(now.Add(s.skew)) {
		return nil, common.Wrap(common.ReasonInvalidSignature, errors.New("token issued in the future"))
	}
	// Skew is tolerated on iat only. Expiry is exact to the second: a token
	// issued with a 3600s lifetime is valid at +3599s and expired at +3601s.
	if now.Unix() > claims.ExpiresAt.Unix() {
		return nil, common.ErrExpired
	}

	revoked, err := s.cache.SetContains(ctx, RevokedTokensSet, claims.ID)
	if err != nil {
		if s.failOpen {
			s.log.Warn(ctx, "revocation check skipped, cache unavailable", "token_id", claims.ID, "error", err)
			return claims, nil
		}
		return nil, err
	}
	if revoked {
		return nil, common.ErrRevoked
	}

	return claims, nil
}

// Revoke adds tokenID to the revocation set until expiresAt has passed. A
// zero expiresAt assumes a full token lifetime; an already expired token is
// left alone.
func (s *TokenService) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	if tokenID == "" {
		return fmt.Errorf("%w: empty token id", common.ErrorValidation)
	}

	now := s.now().UTC()
	if expiresAt.IsZero() {
		expiresAt = now.Add(s.ttl)
	}
	if now.Unix() > expiresAt.Unix() {
		return nil
	}

	// Tokens stay valid through their expiry second.
	ttl := time.Unix(expiresAt.Unix()+1, 0).Sub(now) + s.skew
	if err := s.cache.AddToSet(ctx, RevokedTokensSet, tokenID, ttl); err != nil {
		return err
	}

	s.log.Info(ctx, "token revoked", "token_id", tokenID, "ttl", ttl.String())
	return nil
}

// RevokeToken revokes a raw token. Its signature must be valid but it may
// already be expired. The claims are returned so callers can clean up a
// bound session.
func (s *TokenService) RevokeToken(ctx context.Context, raw string) (*Claims, error) {
	claims, err := s.parse(raw)
	if err != nil {
		return nil, err
	}
	if err := s.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return nil, err
	}
	return claims, nil
}

// parse checks the signature and required claims only.
func (s *TokenService) parse(raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := s.parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, common.Wrap(common.ReasonInvalidSignature, err)
	}
	if !token.Valid {
		return nil, common.ErrInvalidSignature
	}
	if claims.ExpiresAt == nil || claims.ID == "" || claims.UserID == "" {
		return nil, common.Wrap(common.ReasonInvalidSignature, errors.New("missing required claims"))
	}
	return claims, nil
}
