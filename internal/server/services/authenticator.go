package services

import (
	"context"
	"strings"
	"time"

	"github.com/ttm0z/stock-analyzer-sub001/internal/common"
	"github.com/ttm0z/stock-analyzer-sub001/internal/logging"
	"github.com/ttm0z/stock-analyzer-sub001/internal/metrics"
	"github.com/ttm0z/stock-analyzer-sub001/internal/server/auth"
	"github.com/ttm0z/stock-analyzer-sub001/internal/server/models"
)

// Method names how an identity was authenticated.
type Method string

const (
	MethodToken  Method = "token"
	MethodAPIKey Method = "api_key"
)

// Identity is the result of a successful authentication.
type Identity struct {
	UserID   string
	Username string
	Email    string
	Method   Method

	TokenID   string
	SessionID string
	APIKeyID  string
}

type tokenVerifier interface {
	Verify(ctx context.Context, raw string) (*auth.Claims, error)
}

type apiKeyVerifier interface {
	Prefix() string
	Verify(ctx context.Context, secret string) (*models.User, *models.APIKey, error)
}

type sessionTracker interface {
	IsActive(ctx context.Context, id string) (bool, error)
	Touch(ctx context.Context, id string) error
}

// Authenticator resolves a presented credential to an Identity. Credentials
// carrying the API key prefix are API keys; anything else is a bearer token.
type Authenticator struct {
	tokens   tokenVerifier
	keys     apiKeyVerifier
	sessions sessionTracker
	metrics  *metrics.Recorder
	log      logging.Logger
}

func NewAuthenticator(tokens tokenVerifier, keys apiKeyVerifier, sessions sessionTracker,
	rec *metrics.Recorder, log logging.Logger) *Authenticator {
	return &Authenticator{
		tokens:   tokens,
		keys:     keys,
		sessions: sessions,
		metrics:  rec,
		log:      log.With("module", "authenticator"),
	}
}

func (a *Authenticator) Authenticate(ctx context.Context, credential string) (*Identity, error) {
	start := time.Now()

	method := MethodToken
	if strings.HasPrefix(credential, a.keys.Prefix()) {
		method = MethodAPIKey
	}

	var (
		id  *Identity
		err error
	)
	switch method {
	case MethodAPIKey:
		id, err = a.apiKey(ctx, credential)
	default:
		id, err = a.token(ctx, credential)
	}

	reason := common.ReasonFor(err)
	a.metrics.ObserveVerification(string(method), reason, time.Since(start))
	if err != nil {
		a.log.Debug(ctx, "authentication rejected", "method", method, "reason", reason)
		return nil, err
	}
	return id, nil
}

func (a *Authenticator) apiKey(ctx context.Context, secret string) (*Identity, error) {
	user, key, err := a.keys.Verify(ctx, secret)
	if err != nil {
		return nil, err
	}
	return &Identity{
		UserID:   user.ID,
		Username: user.UserName,
		Email:    user.Email,
		Method:   MethodAPIKey,
		APIKeyID: key.ID,
	}, nil
}

func (a *Authenticator) token(ctx context.Context, raw string) (*Identity, error) {
	claims, err := a.tokens.Verify(ctx, raw)
	if err != nil {
		return nil, err
	}

	if claims.SessionID != "" {
		active, err := a.sessions.IsActive(ctx, claims.SessionID)
		if err != nil {
			return nil, err
		}
		if !active {
			return nil, common.ErrRevoked
		}
		if err := a.sessions.Touch(ctx, claims.SessionID); err != nil {
			a.log.Warn(ctx, "session touch failed", "session_id", claims.SessionID, "error", err)
		}
	}

	return &Identity{
		UserID:    claims.UserID,
		Username:  claims.Username,
		Email:     claims.Email,
		Method:    MethodToken,
		TokenID:   claims.ID,
		SessionID: claims.SessionID,
	}, nil
}
