package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"fmt"
	"hash"
	"time"

	"github.com/ttm0z/stock-analyzer-sub001/internal/common"
	"github.com/ttm0z/stock-analyzer-sub001/internal/logging"
	"github.com/ttm0z/stock-analyzer-sub001/internal/server/config"
	"github.com/ttm0z/stock-analyzer-sub001/internal/server/models"
	"github.com/ttm0z/stock-analyzer-sub001/internal/server/repositories/repomanager"
)

// displayChars is how many random characters of a secret are kept in
// APIKey.KeyPrefix, after the configured key prefix.
const displayChars = 8

// APIKeyManager creates, verifies and revokes long-lived API keys. Every
// verification reads the Identity Store; nothing is cached.
type APIKeyManager struct {
	db           *sql.DB
	repomanager  repomanager.RepositoryManager
	log          logging.Logger
	prefix       string
	randomBytes  int
	pepper       []byte
	storeTimeout time.Duration
	now          func() time.Time
}

func NewAPIKeyManager(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, log logging.Logger) *APIKeyManager {
	return &APIKeyManager{
		db:           db,
		repomanager:  m,
		log:          log.With("module", "apikeys"),
		prefix:       cfg.APIKeyPrefix,
		randomBytes:  cfg.APIKeyBytes,
		pepper:       []byte(cfg.APIKeyPepper),
		storeTimeout: cfg.StoreTimeout,
		now:          time.Now,
	}
}

// Prefix returns the marker every secret starts with.
func (s *APIKeyManager) Prefix() string {
	return s.prefix
}

// Create generates a key for user and returns its record and the plaintext
// secret. The secret is not stored and cannot be retrieved again.
func (s *APIKeyManager) Create(ctx context.Context, user *models.User, label string, expiresAt *time.Time) (*models.APIKey, string, error) {
	if !user.IsActive {
		return nil, "", common.ErrRevoked
	}
	if expiresAt != nil && !expiresAt.After(s.now()) {
		return nil, "", fmt.Errorf("%w: expiry is in the past", common.ErrorValidation)
	}

	random, err := common.MakeRandHexString(s.randomBytes)
	if err != nil {
		return nil, "", fmt.Errorf("generate api key: %w", err)
	}
	secret := s.prefix + random

	key := &models.APIKey{
		UserID:    user.ID,
		KeyHash:   s.hash(secret),
		KeyPrefix: secret[:len(s.prefix)+displayChars],
		Label:     label,
		ExpiresAt: expiresAt,
	}

	ctx, cancel := withTimeout(ctx, s.storeTimeout)
	defer cancel()

	key, err = s.repomanager.APIKeys(s.db).Create(ctx, key)
	if err != nil {
		return nil, "", common.Wrap(common.ReasonStoreUnavailable, err)
	}

	s.log.Info(ctx, "api key created", "api_key_id", key.ID, "user_id", user.ID, "label", label)
	return key, secret, nil
}

// Verify resolves secret to its owner and key. Lookups go by hash and the
// stored hash is compared in constant time.
func (s *APIKeyManager) Verify(ctx context.Context, secret string) (*models.User, *models.APIKey, error) {
	computed := s.hash(secret)

	ctx, cancel := withTimeout(ctx, s.storeTimeout)
	defer cancel()

	key, err := s.repomanager.APIKeys(s.db).FindByHash(ctx, computed)
	if err != nil {
		return nil, nil, storeError(err)
	}
	if subtle.ConstantTimeCompare([]byte(key.KeyHash), []byte(computed)) != 1 {
		return nil, nil, common.ErrNotFound
	}

	if key.Revoked {
		return nil, nil, common.ErrRevoked
	}
	if key.Expired(s.now()) {
		return nil, nil, common.ErrExpired
	}

	user, err := s.repomanager.Users(s.db).FindByID(ctx, key.UserID)
	if err != nil {
		return nil, nil, storeError(err)
	}
	if !user.IsActive {
		return nil, nil, common.ErrRevoked
	}

	return user, key, nil
}

// Revoke flags the key as revoked. Revoking twice is not an error.
func (s *APIKeyManager) Revoke(ctx context.Context, apiKeyID string) error {
	if !validID(apiKeyID) {
		return common.ErrNotFound
	}

	ctx, cancel := withTimeout(ctx, s.storeTimeout)
	defer cancel()

	if err := s.repomanager.APIKeys(s.db).Revoke(ctx, apiKeyID); err != nil {
		return storeError(err)
	}

	s.log.Info(ctx, "api key revoked", "api_key_id", apiKeyID)
	return nil
}

// List returns the keys owned by userID, newest first.
func (s *APIKeyManager) List(ctx context.Context, userID string) ([]*models.APIKey, error) {
	ctx, cancel := withTimeout(ctx, s.storeTimeout)
	defer cancel()

	keys, err := s.repomanager.APIKeys(s.db).ListByUser(ctx, userID)
	if err != nil {
		return nil, storeError(err)
	}
	return keys, nil
}

// hash is HMAC-SHA256 keyed by the pepper, or plain SHA-256 without one.
func (s *APIKeyManager) hash(secret string) string {
	var h hash.Hash
	if len(s.pepper) > 0 {
		h = hmac.New(sha256.New, s.pepper)
	} else {
		h = sha256.New()
	}
	h.Write([]byte(secret))
	return hex.EncodeToString(h.Sum(nil))
}
