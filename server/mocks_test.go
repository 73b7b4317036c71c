package server

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"trackvault/cache"
	"trackvault/config"
	"trackvault/core/auth"
	"trackvault/model"
	"trackvault/repository"
	"trackvault/storage"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockUserRepository is a mock implementation of repository.UserRepository.
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) CreateUser(ctx context.Context, user *model.User) (int64, error) {
	args := m.Called(ctx, user)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockUserRepository) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockUserRepository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockUserRepository) UpdateProfile(ctx context.Context, userID int64, name string, bio sql.NullString) error {
	args := m.Called(ctx, userID, name, bio)
	return args.Error(0)
}

// MockTrackRepository is a mock implementation of repository.TrackRepository.
type MockTrackRepository struct {
	mock.Mock
}

func (m *MockTrackRepository) CreateTrack(ctx context.Context, track *model.Track) (int64, error) {
	args := m.Called(ctx, track)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockTrackRepository) GetTrackOwned(ctx context.Context, id, userID int64) (*model.Track, error) {
	args := m.Called(ctx, id, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Track), args.Error(1)
}

func (m *MockTrackRepository) ListTracksByUser(ctx context.Context, userID int64, page repository.ListPage) ([]*model.Track, error) {
	args := m.Called(ctx, userID, page)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Track), args.Error(1)
}

func (m *MockTrackRepository) DeleteTrackOwned(ctx context.Context, id, userID int64) error {
	args := m.Called(ctx, id, userID)
	return args.Error(0)
}

func (m *MockTrackRepository) ListFilePaths(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// testEnv bundles the handler under test with its collaborators.
type testEnv struct {
	userRepo  *MockUserRepository
	trackRepo *MockTrackRepository
	store     storage.Store
	uploadDir string
	tokens    *auth.TokenManager
	cfg       *config.Config
	router    *mux.Router
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dir := t.TempDir()
	store, err := storage.NewLocalStore(dir)
	require.NoError(t, err)

	cfg := &config.Config{
		JWTSecret:      "test-secret",
		TokenTTL:       time.Hour,
		UploadDir:      dir,
		PublicPath:     "/uploads",
		MaxUploadBytes: 1 << 20, // 1 MiB keeps oversize tests cheap
	}

	env := &testEnv{
		userRepo:  new(MockUserRepository),
		trackRepo: new(MockTrackRepository),
		store:     store,
		uploadDir: dir,
		tokens:    auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL),
		cfg:       cfg,
	}

	handler := NewAPIHandler(env.userRepo, env.trackRepo, cache.NewTrackCache(nil), store, env.tokens, cfg)
	env.router = NewRouter(handler, store, cfg)
	return env
}

// tokenFor issues a valid bearer token for tests.
func (e *testEnv) tokenFor(t *testing.T, userID int64, email, name string) string {
	t.Helper()
	token, err := e.tokens.GenerateToken(userID, email, name)
	require.NoError(t, err)
	return token
}
