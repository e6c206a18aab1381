// internal/store/cache/gateway.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"renter-wizard/internal/common/database"
	"renter-wizard/internal/common/logger"
	"renter-wizard/internal/common/metrics"
	"renter-wizard/internal/models"
	"renter-wizard/internal/wizard"
)

const (
	userKeyPrefix = "application:user:"
	idKeyPrefix   = "application:id:"
	genKeyPrefix  = "application:gen:"

	generationTTL = 24 * time.Hour
	fetchTimeout  = 10 * time.Second
)

// Gateway is a read-through Redis cache in front of another wizard.Gateway.
// Fetch results, including "no application", are cached per user; every
// write invalidates the user's entry. Redis failures fall back to next.
//
// Each user has a generation counter bumped by every write. A database read
// only populates the cache when the generation it started under is still
// current, so a read that overlaps a write never restores the old row.
type Gateway struct {
	next   wizard.Gateway
	redis  *database.RedisClient
	ttl    time.Duration
	group  singleflight.Group
	logger logger.Logger
}

func NewGateway(next wizard.Gateway, rdb *database.RedisClient, ttl time.Duration, log logger.Logger) *Gateway {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Gateway{
		next:   next,
		redis:  rdb,
		ttl:    ttl,
		logger: log.WithFields(map[string]interface{}{"component": "application-cache"}),
	}
}

var _ wizard.Gateway = (*Gateway)(nil)

func userKey(userID string) string { return userKeyPrefix + userID }
func idKey(applicationID string) string { return idKeyPrefix + applicationID }
func genKey(userID string) string       { return genKeyPrefix + userID }

// entry wraps the record so a cached miss ("null") differs from an absent key.
type entry struct {
	Record *models.ApplicationRecord `json:"record"`
}

func (g *Gateway) Fetch(ctx context.Context, userID string) (*models.ApplicationRecord, error) {
	key := userKey(userID)

	raw, err := g.redis.GetBytes(ctx, key)
	switch {
	case err == nil:
		var e entry
		if jsonErr := json.Unmarshal(raw, &e); jsonErr == nil {
			metrics.ApplicationCacheRequests.WithLabelValues("hit").Inc()
			return e.Record, nil
		}
		g.logger.Warn("discarding undecodable cache entry", map[string]interface{}{"key": key})
		metrics.ApplicationCacheRequests.WithLabelValues("error").Inc()
	case errors.Is(err, redis.Nil):
		metrics.ApplicationCacheRequests.WithLabelValues("miss").Inc()
	default:
		metrics.ApplicationCacheRequests.WithLabelValues("error").Inc()
		g.logger.Warn("cache read failed, using database", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
	}

	gen, genErr := g.generation(ctx, userID)

	// Callers joining the flight share this read, so it must not die with
	// the first caller's request.
	v, err, _ := g.group.Do(key, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()

		rec, err := g.next.Fetch(fetchCtx, userID)
		if err != nil {
			return nil, err
		}
		if genErr == nil {
			g.store(fetchCtx, userID, gen, rec)
		}
		return rec, nil
	})
	if err != nil {
		return nil, err
	}
	rec, _ := v.(*models.ApplicationRecord)
	return rec, nil
}

func (g *Gateway) Upsert(ctx context.Context, payload models.UpsertPayload) (string, error) {
	id, err := g.next.Upsert(ctx, payload)
	if err != nil {
		return "", err
	}
	g.invalidate(ctx, payload.UserID)
	if err := g.redis.Client.Set(ctx, idKey(id), payload.UserID, generationTTL).Err(); err != nil {
		g.logger.Warn("cache id mapping write failed", map[string]interface{}{
			"applicationId": id,
			"error":         err.Error(),
		})
	}
	return id, nil
}

func (g *Gateway) MarkComplete(ctx context.Context, applicationID string) error {
	if err := g.next.MarkComplete(ctx, applicationID); err != nil {
		return err
	}
	g.invalidateByID(ctx, applicationID)
	return nil
}

func (g *Gateway) CheckCompletion(ctx context.Context, applicationID string) error {
	if err := g.next.CheckCompletion(ctx, applicationID); err != nil {
		return err
	}
	g.invalidateByID(ctx, applicationID)
	return nil
}

// generation returns the user's current write generation, "" before the
// first write.
func (g *Gateway) generation(ctx context.Context, userID string) (string, error) {
	gen, err := g.redis.GetString(ctx, genKey(userID))
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		g.logger.Warn("cache generation read failed, not caching", map[string]interface{}{
			"userId": userID,
			"error":  err.Error(),
		})
	}
	return gen, err
}

// store caches rec unless a write bumped the user's generation since gen
// was read.
func (g *Gateway) store(ctx context.Context, userID, gen string, rec *models.ApplicationRecord) {
	raw, err := json.Marshal(entry{Record: rec})
	if err != nil {
		return
	}
	values := map[string]interface{}{userKey(userID): raw}
	if rec != nil {
		values[idKey(rec.ID)] = userID
	}

	stored, err := g.redis.SetIfUnchanged(ctx, genKey(userID), gen, values, g.ttl)
	switch {
	case err != nil:
		g.logger.Warn("cache write failed", map[string]interface{}{
			"userId": userID,
			"error":  err.Error(),
		})
	case !stored:
		metrics.ApplicationCacheRequests.WithLabelValues("stale_skipped").Inc()
		g.logger.Debug("application changed during read, not caching", map[string]interface{}{
			"userId": userID,
		})
	}
}

// invalidate drops the user's entry and bumps the generation so reads
// already in flight do not write it back.
func (g *Gateway) invalidate(ctx context.Context, userID string) {
	g.group.Forget(userKey(userID))
	if err := g.redis.IncrAndDel(ctx, genKey(userID), generationTTL, userKey(userID)); err != nil {
		g.logger.Warn("cache invalidation failed", map[string]interface{}{
			"userId": userID,
			"error":  err.Error(),
		})
	}
}

// invalidateByID resolves the owning user through the id mapping. Without a
// mapping there is nothing cached that could be stale.
func (g *Gateway) invalidateByID(ctx context.Context, applicationID string) {
	userID, err := g.redis.GetString(ctx, idKey(applicationID))
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			g.logger.Warn("cache id lookup failed", map[string]interface{}{
				"applicationId": applicationID,
				"error":         err.Error(),
			})
		}
		return
	}
	g.invalidate(ctx, userID)
}
