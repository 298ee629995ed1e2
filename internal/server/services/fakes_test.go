package services

import (
	"context"
	"database/sql"
	"sort"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/ttm0z/stock-analyzer-sub001/internal/common"
	"github.com/ttm0z/stock-analyzer-sub001/internal/dbx"
	"github.com/ttm0z/stock-analyzer-sub001/internal/server/cache"
	"github.com/ttm0z/stock-analyzer-sub001/internal/server/config"
	"github.com/ttm0z/stock-analyzer-sub001/internal/server/models"
	"github.com/ttm0z/stock-analyzer-sub001/internal/server/repositories/apikeys"
	"github.com/ttm0z/stock-analyzer-sub001/internal/server/repositories/preferences"
	"github.com/ttm0z/stock-analyzer-sub001/internal/server/repositories/sessions"
	"github.com/ttm0z/stock-analyzer-sub001/internal/server/repositories/users"
)

// --- helpers ---

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.SecretKey = "test-secret"
	cfg.SessionTTL = time.Hour
	cfg.TouchPersistInterval = time.Minute
	cfg.SweepRetention = 24 * time.Hour
	return cfg
}

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func newTestCache(t *testing.T) (*cache.RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	return cache.NewRedisCache(client, time.Second), mr
}

func activeUser() *models.User {
	return &models.User{ID: uuid.NewString(), UserName: "alice", Email: "alice@example.com", IsActive: true}
}

// --- fake repositories ---

type fakeUsersRepo struct {
	byID map[string]*models.User

	createErr error
	findErr   error
}

func newFakeUsersRepo(us ...*models.User) *fakeUsersRepo {
	r := &fakeUsersRepo{byID: map[string]*models.User{}}
	for _, u := range us {
		r.byID[u.ID] = u
	}
	return r
}

func (f *fakeUsersRepo) Create(ctx context.Context, u *models.User) (*models.User, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	u.ID = uuid.NewString()
	u.IsActive = true
	u.CreatedAt = t0
	f.byID[u.ID] = u
	return u, nil
}

func (f *fakeUsersRepo) GetUserByLogin(ctx context.Context, login string) (*models.User, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	for _, u := range f.byID {
		if u.UserName == login {
			return u, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeUsersRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	u, ok := f.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return u, nil
}

func (f *fakeUsersRepo) SetActive(ctx context.Context, id string, active bool) error {
	u, ok := f.byID[id]
	if !ok {
		return common.ErrorNotFound
	}
	u.IsActive = active
	return nil
}

type fakeAPIKeysRepo struct {
	byID map[string]*models.APIKey

	createErr error
	findErr   error
}

func newFakeAPIKeysRepo() *fakeAPIKeysRepo {
	return &fakeAPIKeysRepo{byID: map[string]*models.APIKey{}}
}

func (f *fakeAPIKeysRepo) Create(ctx context.Context, k *models.APIKey) (*models.APIKey, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	k.ID = uuid.NewString()
	k.CreatedAt = t0
	stored := *k
	f.byID[k.ID] = &stored
	return k, nil
}

func (f *fakeAPIKeysRepo) FindByHash(ctx context.Context, hash string) (*models.APIKey, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	for _, k := range f.byID {
		if k.KeyHash == hash {
			out := *k
			return &out, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeAPIKeysRepo) Revoke(ctx context.Context, id string) error {
	k, ok := f.byID[id]
	if !ok {
		return common.ErrorNotFound
	}
	if !k.Revoked {
		now := t0
		k.Revoked = true
		k.RevokedAt = &now
	}
	return nil
}

func (f *fakeAPIKeysRepo) ListByUser(ctx context.Context, userID string) ([]*models.APIKey, error) {
	var out []*models.APIKey
	for _, k := range f.byID {
		if k.UserID == userID {
			c := *k
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// all returns every stored value, for leak checks.
func (f *fakeAPIKeysRepo) all() []*models.APIKey {
	out := make([]*models.APIKey, 0, len(f.byID))
	for _, k := range f.byID {
		out = append(out, k)
	}
	return out
}

type fakeSessionsRepo struct {
	byID map[string]*models.UserSession

	createErr   error
	findErr     error
	updateErr   error
	deactErr    error
	deleteErr   error
	updateCalls int
	locks       []string
	deletedN    int64
	lastCutoff  time.Time

	// run once after a successful lookup or activity write
	afterFind   func(id string)
	afterUpdate func(id string)
}

func newFakeSessionsRepo() *fakeSessionsRepo {
	return &fakeSessionsRepo{byID: map[string]*models.UserSession{}}
}

func (f *fakeSessionsRepo) Create(ctx context.Context, s *models.UserSession) (*models.UserSession, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	s.ID = uuid.NewString()
	s.IsActive = true
	stored := *s
	f.byID[s.ID] = &stored
	return s, nil
}

func (f *fakeSessionsRepo) Find(ctx context.Context, id string) (*models.UserSession, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	s, ok := f.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	out := *s
	if hook := f.afterFind; hook != nil {
		f.afterFind = nil
		hook(id)
	}
	return &out, nil
}

func (f *fakeSessionsRepo) UpdateActivity(ctx context.Context, id string, last, exp time.Time) error {
	f.updateCalls++
	if f.updateErr != nil {
		return f.updateErr
	}
	s, ok := f.byID[id]
	if !ok || !s.IsActive {
		return common.ErrorNotFound
	}
	s.LastActivity = last
	s.ExpiresAt = exp
	if hook := f.afterUpdate; hook != nil {
		f.afterUpdate = nil
		hook(id)
	}
	return nil
}

func (f *fakeSessionsRepo) Deactivate(ctx context.Context, id string) (bool, error) {
	if f.deactErr != nil {
		return false, f.deactErr
	}
	s, ok := f.byID[id]
	if !ok || !s.IsActive {
		return false, nil
	}
	s.IsActive = false
	return true, nil
}

func (f *fakeSessionsRepo) LockDevice(ctx context.Context, userID, fingerprint string) error {
	f.locks = append(f.locks, userID+":"+fingerprint)
	return nil
}

func (f *fakeSessionsRepo) DeactivateActiveByDevice(ctx context.Context, userID, fingerprint string) ([]string, error) {
	if f.deactErr != nil {
		return nil, f.deactErr
	}
	var ids []string
	for id, s := range f.byID {
		if s.UserID == userID && s.DeviceFingerprint == fingerprint && s.IsActive {
			s.IsActive = false
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *fakeSessionsRepo) DeactivateAllForUser(ctx context.Context, userID string) ([]string, error) {
	if f.deactErr != nil {
		return nil, f.deactErr
	}
	var ids []string
	for id, s := range f.byID {
		if s.UserID == userID && s.IsActive {
			s.IsActive = false
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *fakeSessionsRepo) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	f.lastCutoff = cutoff
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	return f.deletedN, nil
}

func (f *fakeSessionsRepo) activeFor(userID, fingerprint string) int {
	n := 0
	for _, s := range f.byID {
		if s.UserID == userID && s.DeviceFingerprint == fingerprint && s.IsActive {
			n++
		}
	}
	return n
}

type fakePrefsRepo struct {
	values map[string]map[string]string
	err    error
}

func newFakePrefsRepo() *fakePrefsRepo {
	return &fakePrefsRepo{values: map[string]map[string]string{}}
}

func (f *fakePrefsRepo) Get(ctx context.Context, userID string) (*models.UserPreferences, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := map[string]string{}
	for k, v := range f.values[userID] {
		out[k] = v
	}
	return &models.UserPreferences{UserID: userID, Values: out}, nil
}

func (f *fakePrefsRepo) Set(ctx context.Context, userID, key, value string) error {
	if f.err != nil {
		return f.err
	}
	if f.values[userID] == nil {
		f.values[userID] = map[string]string{}
	}
	f.values[userID][key] = value
	return nil
}

type fakeRepoManager struct {
	u *fakeUsersRepo
	k *fakeAPIKeysRepo
	s *fakeSessionsRepo
	p *fakePrefsRepo
}

func newFakeRepoManager(us ...*models.User) *fakeRepoManager {
	return &fakeRepoManager{
		u: newFakeUsersRepo(us...),
		k: newFakeAPIKeysRepo(),
		s: newFakeSessionsRepo(),
		p: newFakePrefsRepo(),
	}
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error   { return nil }
func (m *fakeRepoManager) Users(db dbx.DBTX) users.Repository             { return m.u }
func (m *fakeRepoManager) APIKeys(db dbx.DBTX) apikeys.Repository         { return m.k }
func (m *fakeRepoManager) Sessions(db dbx.DBTX) sessions.Repository       { return m.s }
func (m *fakeRepoManager) Preferences(db dbx.DBTX) preferences.Repository { return m.p }
