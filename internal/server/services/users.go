package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/ttm0z/stock-analyzer-sub001/internal/common"
	"github.com/ttm0z/stock-analyzer-sub001/internal/logging"
	"github.com/ttm0z/stock-analyzer-sub001/internal/server/auth"
	"github.com/ttm0z/stock-analyzer-sub001/internal/server/config"
	"github.com/ttm0z/stock-analyzer-sub001/internal/server/models"
	"github.com/ttm0z/stock-analyzer-sub001/internal/server/repositories/repomanager"
	"golang.org/x/crypto/bcrypt"
)

const uniqueViolation = "23505"

// dummyHash is compared against when a login names an unknown user, so
// unknown and known users take about the same time to reject.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.DefaultCost)

type tokenIssuer interface {
	IssueForSession(user *models.User, sessionID string) (string, *auth.Claims, error)
	RevokeToken(ctx context.Context, raw string) (*auth.Claims, error)
}

type sessionStarter interface {
	Start(ctx context.Context, user *models.User, meta models.ClientMetadata) (*models.UserSession, error)
	Terminate(ctx context.Context, id string) error
	TerminateAll(ctx context.Context, userID string) (int, error)
}

// LoginResult is what a successful login hands back to the caller.
type LoginResult struct {
	User        *models.User
	Session     *models.UserSession
	AccessToken string
	Claims      *auth.Claims
}

// UserService provides account operations:
// - Register: create users with bcrypt password hashes
// - Login: check credentials, start a session, mint a token bound to it
// - Logout: revoke the token and end its session
// - Deactivate: disable an account and end all of its sessions
type UserService struct {
	db           *sql.DB
	repomanager  repomanager.RepositoryManager
	tokens       tokenIssuer
	sessions     sessionStarter
	log          logging.Logger
	storeTimeout time.Duration
	bcryptCost   int
}

func NewUserService(db *sql.DB, m repomanager.RepositoryManager, tokens tokenIssuer, sessions sessionStarter,
	cfg *config.Config, log logging.Logger) *UserService {
	return &UserService{
		db:           db,
		repomanager:  m,
		tokens:       tokens,
		sessions:     sessions,
		log:          log.With("module", "users"),
		storeTimeout: cfg.StoreTimeout,
		bcryptCost:   bcrypt.DefaultCost,
	}
}

// Register creates an active user.
func (s *UserService) Register(ctx context.Context, username, email, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || email == "" || password == "" {
		return nil, fmt.Errorf("%w: username, email and password are required", common.ErrorValidation)
	}

	pw := []byte(password)
	defer common.WipeByteArray(pw)

	hash, err := bcrypt.GenerateFromPassword(pw, s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	ctx, cancel := withTimeout(ctx, s.storeTimeout)
	defer cancel()

	user, err := s.repomanager.Users(s.db).Create(ctx, &models.User{
		UserName:     username,
		Email:        email,
		PasswordHash: hash,
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, common.ErrorAlreadyExists
		}
		return nil, common.Wrap(common.ReasonStoreUnavailable, err)
	}

	s.log.Info(ctx, "user registered", "user_id", user.ID, "username", user.UserName)
	return user, nil
}

// Login verifies the password and returns a token bound to a new session.
func (s *UserService) Login(ctx context.Context, username, password string, meta models.ClientMetadata) (*LoginResult, error) {
	pw := []byte(password)
	defer common.WipeByteArray(pw)

	storeCtx, cancel := withTimeout(ctx, s.storeTimeout)
	defer cancel()

	user, err := s.repomanager.Users(s.db).GetUserByLogin(storeCtx, username)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyHash, pw)
			return nil, common.ErrInvalidCredentials
		}
		return nil, common.Wrap(common.ReasonStoreUnavailable, err)
	}

	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, pw); err != nil {
		return nil, common.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, common.ErrRevoked
	}

	session, err := s.sessions.Start(ctx, user, meta)
	if err != nil {
		return nil, err
	}

	token, claims, err := s.tokens.IssueForSession(user, session.ID)
	if err != nil {
		_ = s.sessions.Terminate(ctx, session.ID)
		return nil, err
	}

	s.log.Info(ctx, "user logged in", "user_id", user.ID, "session_id", session.ID)
	return &LoginResult{User: user, Session: session, AccessToken: token, Claims: claims}, nil
}

// Logout revokes rawToken and ends the session it is bound to.
func (s *UserService) Logout(ctx context.Context, rawToken string) error {
	claims, err := s.tokens.RevokeToken(ctx, rawToken)
	if err != nil {
		return err
	}
	if claims.SessionID != "" {
		if err := s.sessions.Terminate(ctx, claims.SessionID); err != nil {
			return err
		}
	}
	s.log.Info(ctx, "user logged out", "user_id", claims.UserID, "session_id", claims.SessionID)
	return nil
}

// Deactivate disables userID and ends every active session it owns, so
// tokens bound to those sessions stop authenticating. API keys are refused
// at verification because their owner is inactive.
func (s *UserService) Deactivate(ctx context.Context, userID string) error {
	if !validID(userID) {
		return common.ErrNotFound
	}

	storeCtx, cancel := withTimeout(ctx, s.storeTimeout)
	defer cancel()

	if err := s.repomanager.Users(s.db).SetActive(storeCtx, userID, false); err != nil {
		return storeError(err)
	}

	n, err := s.sessions.TerminateAll(ctx, userID)
	if err != nil {
		return err
	}

	s.log.Info(ctx, "user deactivated", "user_id", userID, "sessions_ended", n)
	return nil
}

// Profile returns the user together with their preferences.
func (s *UserService) Profile(ctx context.Context, userID string) (*models.User, *models.UserPreferences, error) {
	if !validID(userID) {
		return nil, nil, common.ErrNotFound
	}

	ctx, cancel := withTimeout(ctx, s.storeTimeout)
	defer cancel()

	user, err := s.repomanager.Users(s.db).FindByID(ctx, userID)
	if err != nil {
		return nil, nil, storeError(err)
	}
	prefs, err := s.repomanager.Preferences(s.db).Get(ctx, userID)
	if err != nil {
		return nil, nil, storeError(err)
	}
	return user, prefs, nil
}

// SetPreference stores one preference value for userID.
func (s *UserService) SetPreference(ctx context.Context, userID, key, value string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%w: preference key is required", common.ErrorValidation)
	}

	ctx, cancel := withTimeout(ctx, s.storeTimeout)
	defer cancel()

	if err := s.repomanager.Preferences(s.db).Set(ctx, userID, key, value); err != nil {
		return storeError(err)
	}
	return nil
}
