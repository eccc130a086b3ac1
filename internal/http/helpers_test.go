package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"clubhub/internal/chat"
	"clubhub/internal/config"
	"clubhub/internal/domain"
	"clubhub/internal/repository"
	"clubhub/internal/service"
)

type mockUserRepo struct {
	mu           sync.Mutex
	usersByID    map[string]domain.User
	usersByEmail map[string]string
}

func newMockUserRepo(users ...domain.User) *mockUserRepo {
	m := &mockUserRepo{
		usersByID:    make(map[string]domain.User),
		usersByEmail: make(map[string]string),
	}
	for _, u := range users {
		_ = m.Create(context.Background(), u)
	}
	return m
}

func (m *mockUserRepo) Create(_ context.Context, user domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.usersByEmail[user.Email]; taken {
		return repository.ErrEmailTaken
	}
	m.usersByID[user.ID] = user
	m.usersByEmail[user.Email] = user.ID
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.usersByID[id]
	if !ok {
		return domain.User{}, repository.ErrNotFound
	}
	return user, nil
}

func (m *mockUserRepo) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	m.mu.Lock()
	id, ok := m.usersByEmail[email]
	m.mu.Unlock()
	if !ok {
		return domain.User{}, repository.ErrNotFound
	}
	return m.GetByID(ctx, id)
}

func (m *mockUserRepo) GetSummaries(_ context.Context, ids []string) (map[string]domain.UserSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]domain.UserSummary)
	for _, id := range ids {
		if u, ok := m.usersByID[id]; ok {
			out[id] = u.Summary()
		}
	}
	return out, nil
}

type mockMessageRepo struct {
	mu       sync.Mutex
	messages []domain.Message
	err      error

	// entered y gate permiten frenar un Append en curso.
	entered chan struct{}
	gate    chan struct{}
}

func (m *mockMessageRepo) Append(_ context.Context, msg domain.Message) error {
	if m.entered != nil {
		m.entered <- struct{}{}
	}
	if m.gate != nil {
		<-m.gate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, msg)
	return nil
}

func (m *mockMessageRepo) ListByRoom(_ context.Context, roomID string) ([]domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []domain.Message
	for _, msg := range m.messages {
		if msg.RoomID == roomID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *mockMessageRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

type testApp struct {
	router   *gin.Engine
	users    *mockUserRepo
	messages *mockMessageRepo
	jwt      *service.JWTService
	registry *chat.Registry
	ws       *WSHandler
}

var (
	ana  = domain.User{ID: "u1", Name: "Ana", Email: "ana@campus.edu", Department: "CEC", Role: domain.RoleStudent, ProfileImageURL: "https://img/ana.png"}
	beto = domain.User{ID: "u2", Name: "Beto", Email: "beto@campus.edu", Department: "CCT", Role: domain.RoleStudent}
)

func testWSConfig() config.WebSocketConfig {
	return config.WebSocketConfig{
		PingInterval:  time.Second,
		PongWait:      5 * time.Second,
		WriteWait:     time.Second,
		MaxFrameBytes: 8192,
		SendBuffer:    16,
	}
}

type testAppOptions struct {
	wsRequireAuth bool
	ws            *config.WebSocketConfig
	// gatedAppends frena cada Append hasta que se cierre messages.gate.
	gatedAppends bool
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	return newTestAppWith(t, testAppOptions{})
}

func newTestAppWith(t *testing.T, opts testAppOptions) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	wsCfg := testWSConfig()
	if opts.ws != nil {
		wsCfg = *opts.ws
	}

	users := newMockUserRepo(ana, beto)
	messages := &mockMessageRepo{}
	if opts.gatedAppends {
		messages.entered = make(chan struct{}, 1)
		messages.gate = make(chan struct{})
	}
	jwtSvc := service.NewJWTService("secret", 15*time.Minute, time.Hour, nil)
	userSvc := service.NewUserService(logger, users, service.NewMemoryLoginThrottle(time.Minute, 3, 10))
	msgSvc := service.NewMessageService(logger, messages, users)

	registry := chat.NewRegistry(logger)
	chatH := chat.NewHandler(logger, service.NewRepositoryIdentityResolver(users), messages, registry)
	wsH := NewWSHandler(logger, chatH, wsCfg, "http://localhost:5173")

	router := NewRouter(logger, RouterDeps{
		Users:         NewUserHandler(logger, userSvc, jwtSvc, false),
		Messages:      NewMessageHandler(logger, msgSvc),
		WebSocket:     wsH,
		Auth:          JWTAuthMiddleware(jwtSvc, userSvc),
		CORSOrigin:    "http://localhost:5173",
		WSRequireAuth: opts.wsRequireAuth,
	})
	return &testApp{router: router, users: users, messages: messages, jwt: jwtSvc, registry: registry, ws: wsH}
}

func (a *testApp) accessToken(t *testing.T, user domain.User) string {
	t.Helper()
	pair, err := a.jwt.GeneratePair(context.Background(), user)
	if err != nil {
		t.Fatalf("generate pair: %v", err)
	}
	return pair.AccessToken
}

func performRequest(r http.Handler, method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var payload []byte
	if body != nil {
		payload, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
}
