package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRefreshTTL = 7 * 24 * time.Hour

// RefreshTokenStore lleva las sesiones abiertas de cada usuario, una por jti de refresh.
type RefreshTokenStore interface {
	Save(ctx context.Context, userID, jti string, ttl time.Duration) error
	Active(ctx context.Context, userID, jti string) (bool, error)
	Revoke(ctx context.Context, userID, jti string) error
	// RevokeAll cierra todas las sesiones del usuario y devuelve cuántas había.
	RevokeAll(ctx context.Context, userID string) (int, error)
}

type memoryRefreshTokenStore struct {
	mu       sync.Mutex
	sessions map[string]map[string]time.Time // userID -> jti -> vencimiento
	now      func() time.Time
}

func NewMemoryRefreshTokenStore() RefreshTokenStore {
	return &memoryRefreshTokenStore{
		sessions: make(map[string]map[string]time.Time),
		now:      time.Now,
	}
}

func (s *memoryRefreshTokenStore) Save(_ context.Context, userID, jti string, ttl time.Duration) error {
	userID, jti, ok := sessionKey(userID, jti)
	if !ok {
		return errEmptySession
	}
	if ttl <= 0 {
		ttl = defaultRefreshTTL
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	byJTI, found := s.sessions[userID]
	if !found {
		byJTI = make(map[string]time.Time)
		s.sessions[userID] = byJTI
	}
	byJTI[jti] = s.now().Add(ttl)
	return nil
}

func (s *memoryRefreshTokenStore) Active(_ context.Context, userID, jti string) (bool, error) {
	userID, jti, ok := sessionKey(userID, jti)
	if !ok {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, found := s.sessions[userID][jti]
	if !found {
		return false, nil
	}
	if !s.now().Before(exp) {
		s.dropLocked(userID, jti)
		return false, nil
	}
	return true, nil
}

func (s *memoryRefreshTokenStore) Revoke(_ context.Context, userID, jti string) error {
	userID, jti, ok := sessionKey(userID, jti)
	if !ok {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropLocked(userID, jti)
	return nil
}

func (s *memoryRefreshTokenStore) RevokeAll(_ context.Context, userID string) (int, error) {
	userID = strings.TrimSpace(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for _, exp := range s.sessions[userID] {
		if now.Before(exp) {
			n++
		}
	}
	delete(s.sessions, userID)
	return n, nil
}

func (s *memoryRefreshTokenStore) dropLocked(userID, jti string) {
	delete(s.sessions[userID], jti)
	if len(s.sessions[userID]) == 0 {
		delete(s.sessions, userID)
	}
}

// redisSessionClient es el subconjunto de go-redis que usa el store de sesiones.
type redisSessionClient interface {
	ZAdd(ctx context.Context, key string, members ...redis.Z) *redis.IntCmd
	ZScore(ctx context.Context, key, member string) *redis.FloatCmd
	ZRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	ZRemRangeByScore(ctx context.Context, key, min, max string) *redis.IntCmd
	ZCard(ctx context.Context, key string) *redis.IntCmd
	PExpire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// redisRefreshTokenStore guarda un sorted set por usuario: miembro = jti,
// score = vencimiento en milisegundos Unix.
type redisRefreshTokenStore struct {
	client redisSessionClient
	prefix string
	now    func() time.Time
}

func NewRedisRefreshTokenStore(client *redis.Client) RefreshTokenStore {
	if client == nil {
		return nil
	}
	return &redisRefreshTokenStore{
		client: client,
		prefix: "clubhub:sessions:",
		now:    time.Now,
	}
}

func (s *redisRefreshTokenStore) key(userID string) string {
	return s.prefix + userID
}

func (s *redisRefreshTokenStore) Save(ctx context.Context, userID, jti string, ttl time.Duration) error {
	userID, jti, ok := sessionKey(userID, jti)
	if !ok {
		return errEmptySession
	}
	if ttl <= 0 {
		ttl = defaultRefreshTTL
	}
	now := s.now()
	key := s.key(userID)
	if err := s.client.ZAdd(ctx, key, redis.Z{Score: float64(now.Add(ttl).UnixMilli()), Member: jti}).Err(); err != nil {
		return err
	}
	if err := s.client.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(now.UnixMilli(), 10)).Err(); err != nil {
		return err
	}
	// Todas las sesiones comparten TTL: la más nueva es la que más dura.
	return s.client.PExpire(ctx, key, ttl).Err()
}

func (s *redisRefreshTokenStore) Active(ctx context.Context, userID, jti string) (bool, error) {
	userID, jti, ok := sessionKey(userID, jti)
	if !ok {
		return false, nil
	}
	score, err := s.client.ZScore(ctx, s.key(userID), jti).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return int64(score) > s.now().UnixMilli(), nil
}

func (s *redisRefreshTokenStore) Revoke(ctx context.Context, userID, jti string) error {
	userID, jti, ok := sessionKey(userID, jti)
	if !ok {
		return nil
	}
	return s.client.ZRem(ctx, s.key(userID), jti).Err()
}

func (s *redisRefreshTokenStore) RevokeAll(ctx context.Context, userID string) (int, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, nil
	}
	key := s.key(userID)
	if err := s.client.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(s.now().UnixMilli(), 10)).Err(); err != nil {
		return 0, err
	}
	n, err := s.client.ZCard(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return 0, err
	}
	return int(n), nil
}

var errEmptySession = errors.New("refresh session needs user id and jti")

func sessionKey(userID, jti string) (string, string, bool) {
	userID = strings.TrimSpace(userID)
	jti = strings.TrimSpace(jti)
	return userID, jti, userID != "" && jti != ""
}
