package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"clubhub/internal/repository"
)

// IdentityResolver confirma que un usuario existe.
type IdentityResolver interface {
	Exists(ctx context.Context, userID string) (bool, error)
}

// RepositoryIdentityResolver consulta el almacén de usuarios en cada llamada.
type RepositoryIdentityResolver struct {
	users repository.UserRepository
}

func NewRepositoryIdentityResolver(users repository.UserRepository) *RepositoryIdentityResolver {
	return &RepositoryIdentityResolver{users: users}
}

func (r *RepositoryIdentityResolver) Exists(ctx context.Context, userID string) (bool, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false, nil
	}
	_, err := r.users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

type bypassCacheKey struct{}

// BypassIdentityCache marca el contexto para que la resolución ignore la caché.
func BypassIdentityCache(ctx context.Context) context.Context {
	return context.WithValue(ctx, bypassCacheKey{}, true)
}

func bypassesCache(ctx context.Context) bool {
	v, _ := ctx.Value(bypassCacheKey{}).(bool)
	return v
}

type redisKVClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// CachedIdentityResolver guarda en Redis sólo las respuestas positivas.
// Si Redis falla se consulta directamente al resolver interno.
type CachedIdentityResolver struct {
	logger *zap.Logger
	inner  IdentityResolver
	client redisKVClient
	ttl    time.Duration
	prefix string
}

func NewCachedIdentityResolver(logger *zap.Logger, inner IdentityResolver, client *redis.Client, ttl time.Duration) IdentityResolver {
	if client == nil {
		return inner
	}
	return newCachedIdentityResolver(logger, inner, client, ttl)
}

func newCachedIdentityResolver(logger *zap.Logger, inner IdentityResolver, client redisKVClient, ttl time.Duration) *CachedIdentityResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CachedIdentityResolver{
		logger: logger,
		inner:  inner,
		client: client,
		ttl:    ttl,
		prefix: "identity:exists:",
	}
}

func (r *CachedIdentityResolver) Exists(ctx context.Context, userID string) (bool, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false, nil
	}
	key := r.prefix + userID

	if !bypassesCache(ctx) {
		n, err := r.client.Exists(ctx, key).Result()
		switch {
		case err != nil:
			r.logger.Warn("identity cache read failed", zap.Error(err), zap.String("user_id", userID))
		case n > 0:
			return true, nil
		}
	}

	ok, err := r.inner.Exists(ctx, userID)
	if err != nil || !ok {
		return ok, err
	}
	if err := r.client.Set(ctx, key, 1, r.ttl).Err(); err != nil {
		r.logger.Warn("identity cache write failed", zap.Error(err), zap.String("user_id", userID))
	}
	return true, nil
}

// Invalidate descarta la entrada en caché de un usuario.
func (r *CachedIdentityResolver) Invalidate(ctx context.Context, userID string) error {
	return r.client.Del(ctx, r.prefix+strings.TrimSpace(userID)).Err()
}
