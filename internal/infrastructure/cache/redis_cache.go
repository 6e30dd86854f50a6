// Package cache implementa la caché de respuestas del gateway sobre Redis,
// con un índice explícito tag -> conjunto de claves.
//
// Esquema de claves (todas con el prefijo del namespace):
//
//	{ns}:entry:{resource}:{hash}   valor cacheado (con TTL)
//	{ns}:tag:{tag}                 SET con las claves de entrada asociadas al tag
//
// La caché nunca está en el camino crítico: cualquier error del backend se
// registra y se degrada a invocar al productor.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/jhoicas/stockflow/internal/application/ports"
	"github.com/jhoicas/stockflow/pkg/config"
	"github.com/jhoicas/stockflow/pkg/logger"
)

var _ ports.Cache = (*RedisCache)(nil)

// tagIndexTTL vida de los conjuntos de tags; el TTL de una entrada nunca lo supera,
// así un tag siempre vive al menos tanto como sus entradas.
const tagIndexTTL = 24 * time.Hour

// invalidateScript borra atómicamente las entradas de cada tag y el propio tag.
var invalidateScript = redis.NewScript(`
local removed = 0
for _, tag in ipairs(KEYS) do
  local members = redis.call('SMEMBERS', tag)
  for _, key in ipairs(members) do
    removed = removed + redis.call('DEL', key)
  end
  redis.call('DEL', tag)
end
return removed
`)

// RedisCache implementación de ports.Cache. client nil = caché deshabilitada.
type RedisCache struct {
	client    *redis.Client
	namespace string
	log       *logger.Logger
}

// NewRedisClient abre la conexión y verifica con Ping. URL vacía devuelve (nil, nil).
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("REDIS_URL inválida: %w", err)
	}
	if cfg.DB >= 0 && cfg.DB <= 15 {
		opt.DB = cfg.DB
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// NewRedisCache construye la caché. log nil usa un logger descartable.
func NewRedisCache(client *redis.Client, namespace string, log *logger.Logger) *RedisCache {
	if log == nil {
		log = logger.Nop()
	}
	if namespace == "" {
		namespace = "stockflow:cache"
	}
	return &RedisCache{client: client, namespace: namespace, log: log.Component("cache")}
}

func (c *RedisCache) entryKey(key string) string { return c.namespace + ":entry:" + key }
func (c *RedisCache) tagKey(tag string) string   { return c.namespace + ":tag:" + tag }

// Remember devuelve el valor cacheado bajo key o, en miss, invoca producer, guarda
// el resultado con ttl y lo asocia a cada tag. Los errores de producer no se cachean.
func (c *RedisCache) Remember(ctx context.Context, key string, ttl time.Duration, tags []string, producer func(context.Context) ([]byte, error)) ([]byte, error) {
	if c.client == nil {
		return producer(ctx)
	}

	val, err := c.client.Get(ctx, c.entryKey(key)).Bytes()
	switch {
	case err == nil:
		c.log.Debug().Str("key", key).Msg("cache hit")
		return val, nil
	case errors.Is(err, redis.Nil):
	default:
		// Backend caído: se calcula directo y no se intenta escribir.
		c.log.Warn().Err(err).Str("key", key).Msg("caché no disponible, se omite")
		return producer(ctx)
	}

	val, err = producer(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.store(ctx, key, val, ttl, tags); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("no se pudo guardar en caché")
	}
	return val, nil
}

func (c *RedisCache) store(ctx context.Context, key string, val []byte, ttl time.Duration, tags []string) error {
	if ttl <= 0 {
		return nil
	}
	if ttl > tagIndexTTL {
		ttl = tagIndexTTL
	}
	entry := c.entryKey(key)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, entry, val, ttl)
		for _, tag := range tags {
			tk := c.tagKey(tag)
			pipe.SAdd(ctx, tk, entry)
			pipe.Expire(ctx, tk, tagIndexTTL)
		}
		return nil
	})
	return err
}

// InvalidateByTag elimina todas las entradas asociadas a cualquiera de los tags.
// Varios tags se invalidan en una sola operación atómica.
func (c *RedisCache) InvalidateByTag(ctx context.Context, tags ...string) error {
	if c.client == nil || len(tags) == 0 {
		return nil
	}
	keys := make([]string, 0, len(tags))
	for _, tag := range tags {
		keys = append(keys, c.tagKey(tag))
	}
	removed, err := invalidateScript.Run(ctx, c.client, keys).Int()
	if err != nil {
		c.log.Warn().Err(err).Strs("tags", tags).Msg("invalidación de caché fallida")
		return fmt.Errorf("invalidar tags: %w", err)
	}
	c.log.Debug().Strs("tags", tags).Int("removed", removed).Msg("tags invalidados")
	return nil
}
