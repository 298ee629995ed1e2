package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ttm0z/stock-analyzer-sub001/internal/common"
	"github.com/ttm0z/stock-analyzer-sub001/internal/dbx"
	"github.com/ttm0z/stock-analyzer-sub001/internal/logging"
	"github.com/ttm0z/stock-analyzer-sub001/internal/metrics"
	"github.com/ttm0z/stock-analyzer-sub001/internal/server/cache"
	"github.com/ttm0z/stock-analyzer-sub001/internal/server/config"
	"github.com/ttm0z/stock-analyzer-sub001/internal/server/models"
	"github.com/ttm0z/stock-analyzer-sub001/internal/server/repositories/repomanager"
)

const (
	sessionKeyPrefix = "session:"
	touchKeyPrefix   = "session_touch:"
)

// cacheDropRetryWindow bounds how long a failed cache delete is retried in
// the background after the durable row was ended.
const cacheDropRetryWindow = 30 * time.Second

func sessionKey(id string) string { return sessionKeyPrefix + id }
func touchKey(id string) string   { return touchKeyPrefix + id }

// SessionManager keeps durable UserSession rows and their cache mirrors in
// step. The cache answers liveness checks; the store is the fallback after
// evictions or cache outages.
type SessionManager struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	cache       cache.Cache
	log         logging.Logger
	metrics     *metrics.Recorder

	ttl             time.Duration
	touchInterval   time.Duration
	retention       time.Duration
	storeTimeout    time.Duration
	singlePerDevice bool
	dropRetry       time.Duration

	now func() time.Time
}

func NewSessionManager(db *sql.DB, m repomanager.RepositoryManager, c cache.Cache, cfg *config.Config,
	log logging.Logger, rec *metrics.Recorder) *SessionManager {
	return &SessionManager{
		db:              db,
		repomanager:     m,
		cache:           c,
		log:             log.With("module", "sessions"),
		metrics:         rec,
		ttl:             cfg.SessionTTL,
		touchInterval:   cfg.TouchPersistInterval,
		retention:       cfg.SweepRetention,
		storeTimeout:    cfg.StoreTimeout,
		singlePerDevice: cfg.SinglePerDevice(),
		dropRetry:       cacheDropRetryWindow,
		now:             time.Now,
	}
}

// Start records a new active session for user. Under the single-per-device
// policy the user's other active sessions for the same device are ended in
// the same transaction.
func (s *SessionManager) Start(ctx context.Context, user *models.User, meta models.ClientMetadata) (*models.UserSession, error) {
	if !user.IsActive {
		return nil, common.ErrRevoked
	}

	now := s.now().UTC()
	session := &models.UserSession{
		UserID:         user.ID,
		CreatedAt:      now,
		LastActivity:   now,
		ExpiresAt:      now.Add(s.ttl),
		ClientMetadata: meta,
	}

	storeCtx, cancel := withTimeout(ctx, s.storeTimeout)
	defer cancel()

	var replaced []string
	var err error
	if s.singlePerDevice && meta.DeviceFingerprint != "" {
		session, err = dbx.InTx(storeCtx, s.db, func(ctx context.Context, tx dbx.DBTX) (*models.UserSession, error) {
			repo := s.repomanager.Sessions(tx)
			if err := repo.LockDevice(ctx, user.ID, meta.DeviceFingerprint); err != nil {
				return nil, err
			}
			ids, err := repo.DeactivateActiveByDevice(ctx, user.ID, meta.DeviceFingerprint)
			if err != nil {
				return nil, err
			}
			replaced = ids
			return repo.Create(ctx, session)
		})
	} else {
		session, err = s.repomanager.Sessions(s.db).Create(storeCtx, session)
	}
	if err != nil {
		return nil, common.Wrap(common.ReasonStoreUnavailable, err)
	}

	if len(replaced) > 0 {
		s.dropCached(ctx, replaced...)
		s.metrics.SessionEvent(metrics.SessionTerminated, len(replaced))
	}
	if err := s.cache.Set(ctx, sessionKey(session.ID), session.UserID, s.ttl); err != nil {
		s.log.Warn(ctx, "session not mirrored to cache", "session_id", session.ID, "error", err)
	}

	s.metrics.SessionEvent(metrics.SessionStarted, 1)
	s.log.Info(ctx, "session started", "session_id", session.ID, "user_id", user.ID, "replaced", len(replaced))
	return session, nil
}

// Touch slides the session's expiry. The cache TTL moves on every call; the
// durable row is rewritten at most once per touch interval.
func (s *SessionManager) Touch(ctx context.Context, id string) error {
	if !validID(id) {
		return common.ErrNotFound
	}
	now := s.now().UTC()

	extended, err := s.cache.Expire(ctx, sessionKey(id), s.ttl)
	if err != nil {
		s.log.Warn(ctx, "touch falling back to store", "session_id", id, "error", err)
	}
	if err != nil || !extended {
		return s.touchFromStore(ctx, id, now)
	}

	first, err := s.cache.SetIfAbsent(ctx, touchKey(id), "1", s.touchInterval)
	if err != nil || !first {
		return nil
	}

	storeCtx, cancel := withTimeout(ctx, s.storeTimeout)
	defer cancel()

	err = s.repomanager.Sessions(s.db).UpdateActivity(storeCtx, id, now, now.Add(s.ttl))
	switch {
	case errors.Is(err, common.ErrorNotFound):
		// Ended elsewhere while still cached.
		s.dropCached(ctx, id)
		return common.Wrap(common.ReasonNotFound, err)
	case err != nil:
		s.log.Warn(ctx, "session activity not persisted", "session_id", id, "error", err)
	}
	return nil
}

func (s *SessionManager) touchFromStore(ctx context.Context, id string, now time.Time) error {
	storeCtx, cancel := withTimeout(ctx, s.storeTimeout)
	defer cancel()

	session, live, err := s.storedLive(storeCtx, id, now)
	if err != nil {
		return err
	}
	if !live {
		switch {
		case session == nil || !session.IsActive:
			return common.ErrNotFound
		case !now.Before(session.ExpiresAt):
			return common.ErrExpired
		default:
			return common.ErrRevoked
		}
	}

	if err := s.repomanager.Sessions(s.db).UpdateActivity(storeCtx, id, now, now.Add(s.ttl)); err != nil {
		return storeError(err)
	}

	if !s.refill(ctx, storeCtx, id, session.UserID, s.ttl, now) {
		return common.ErrNotFound
	}
	_, _ = s.cache.SetIfAbsent(ctx, touchKey(id), "1", s.touchInterval)
	return nil
}

// Terminate ends a session. Unknown and already ended sessions are not an
// error. When the cache delete fails the durable row is already ended, the
// call reports CACHE_UNAVAILABLE and the delete keeps being retried in the
// background; until it lands a cached entry may still answer IsActive.
func (s *SessionManager) Terminate(ctx context.Context, id string) error {
	if !validID(id) {
		return nil
	}

	storeCtx, cancel := withTimeout(ctx, s.storeTimeout)
	defer cancel()

	changed, err := s.repomanager.Sessions(s.db).Deactivate(storeCtx, id)
	if err != nil {
		return common.Wrap(common.ReasonStoreUnavailable, err)
	}

	if err := s.cache.Delete(ctx, sessionKey(id), touchKey(id)); err != nil {
		go s.retryDrop(id)
		return err
	}

	if changed {
		s.metrics.SessionEvent(metrics.SessionTerminated, 1)
		s.log.Info(ctx, "session terminated", "session_id", id)
	}
	return nil
}

// TerminateAll ends every active session of userID and returns how many
// were ended.
func (s *SessionManager) TerminateAll(ctx context.Context, userID string) (int, error) {
	storeCtx, cancel := withTimeout(ctx, s.storeTimeout)
	defer cancel()

	ids, err := s.repomanager.Sessions(s.db).DeactivateAllForUser(storeCtx, userID)
	if err != nil {
		return 0, common.Wrap(common.ReasonStoreUnavailable, err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, 2*len(ids))
	for _, id := range ids {
		keys = append(keys, sessionKey(id), touchKey(id))
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		go s.retryDrop(ids...)
		return len(ids), err
	}

	s.metrics.SessionEvent(metrics.SessionTerminated, len(ids))
	s.log.Info(ctx, "all sessions terminated", "user_id", userID, "count", len(ids))
	return len(ids), nil
}

// IsActive reports whether the session is live. The cache is consulted
// first; on a miss or cache failure the durable row decides and the cache
// entry is restored for its remaining lifetime.
func (s *SessionManager) IsActive(ctx context.Context, id string) (bool, error) {
	if !validID(id) {
		return false, nil
	}

	_, ok, cacheErr := s.cache.Get(ctx, sessionKey(id))
	if cacheErr == nil && ok {
		return true, nil
	}
	if cacheErr != nil {
		s.log.Warn(ctx, "session check falling back to store", "session_id", id, "error", cacheErr)
	}

	storeCtx, cancel := withTimeout(ctx, s.storeTimeout)
	defer cancel()

	now := s.now().UTC()
	session, live, err := s.storedLive(storeCtx, id, now)
	if err != nil || !live {
		return false, err
	}

	if cacheErr == nil {
		return s.refill(ctx, storeCtx, id, session.UserID, session.ExpiresAt.Sub(now), now), nil
	}
	return true, nil
}

// storedLive loads the durable row and reports whether it is active,
// unexpired and owned by an active user. A missing row is not an error.
func (s *SessionManager) storedLive(ctx context.Context, id string, now time.Time) (*models.UserSession, bool, error) {
	session, err := s.repomanager.Sessions(s.db).Find(ctx, id)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, common.Wrap(common.ReasonStoreUnavailable, err)
	}
	if !session.Live(now) {
		return session, false, nil
	}

	owner, err := s.repomanager.Users(s.db).FindByID(ctx, session.UserID)
	if errors.Is(err, common.ErrorNotFound) {
		return session, false, nil
	}
	if err != nil {
		return nil, false, common.Wrap(common.ReasonStoreUnavailable, err)
	}
	return session, owner.IsActive, nil
}

// refill restores the cache entry for a session the store just reported
// live, then reads the row again. A Terminate or user deactivation that
// landed between the two reads removes the entry it would otherwise have
// resurrected, and the session is reported ended.
func (s *SessionManager) refill(ctx, storeCtx context.Context, id, userID string, ttl time.Duration, now time.Time) bool {
	if err := s.cache.Set(ctx, sessionKey(id), userID, ttl); err != nil {
		s.log.Warn(ctx, "session cache not repopulated", "session_id", id, "error", err)
		return true
	}

	_, live, err := s.storedLive(storeCtx, id, now)
	if err != nil {
		s.log.Warn(ctx, "session recheck failed, dropping cache entry", "session_id", id, "error", err)
		s.dropCached(ctx, id)
		return true
	}
	if !live {
		s.dropCached(ctx, id)
	}
	return live
}

// Sweep deletes rows that expired, or were ended, more than the retention
// period ago.
func (s *SessionManager) Sweep(ctx context.Context) (int64, error) {
	cutoff := s.now().UTC().Add(-s.retention)

	storeCtx, cancel := withTimeout(ctx, s.storeTimeout)
	defer cancel()

	n, err := s.repomanager.Sessions(s.db).DeleteExpired(storeCtx, cutoff)
	if err != nil {
		return 0, common.Wrap(common.ReasonStoreUnavailable, err)
	}

	s.metrics.SessionEvent(metrics.SessionSwept, int(n))
	return n, nil
}

func (s *SessionManager) dropCached(ctx context.Context, ids ...string) {
	keys := make([]string, 0, 2*len(ids))
	for _, id := range ids {
		keys = append(keys, sessionKey(id), touchKey(id))
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.log.Warn(ctx, "stale session cache entries not removed", "sessions", ids, "error", err)
	}
}

// retryDrop keeps deleting the cache entries of ended sessions until it
// succeeds or the retry window closes.
func (s *SessionManager) retryDrop(ids ...string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.dropRetry)
	defer cancel()

	keys := make([]string, 0, 2*len(ids))
	for _, id := range ids {
		keys = append(keys, sessionKey(id), touchKey(id))
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxElapsedTime = s.dropRetry

	err := backoff.Retry(func() error {
		return s.cache.Delete(ctx, keys...)
	}, backoff.WithContext(b, ctx))
	if err != nil {
		s.log.Error(ctx, "ended sessions left in cache", "sessions", ids, "error", err)
		return
	}
	s.log.Info(ctx, "ended sessions removed from cache", "sessions", ids)
}
