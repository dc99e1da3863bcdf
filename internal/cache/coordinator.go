package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Key namespaces. The cache is advisory, never authoritative: every entry
// is bounded by a TTL so that a skipped invalidation heals on its own.
//
//	trip:{tripId}                              full trip document
//	user:trips:{userId}:{queryFingerprint}     paginated trip lists
//	permission:{tripId}:{userId}:{permission}  permission decisions

// Config is explicit constructor-time cache configuration.
type Config struct {
	Enabled       bool
	TripTTL       time.Duration
	ListTTL       time.Duration
	PermissionTTL time.Duration
}

// Coordinator is the read-through cache sitting in front of the trip store.
type Coordinator struct {
	store Store
	cfg   Config
}

func NewCoordinator(store Store, cfg Config) *Coordinator {
	return &Coordinator{store: store, cfg: cfg}
}

// Enabled reports whether caching is active.
func (c *Coordinator) Enabled() bool {
	return c != nil && c.cfg.Enabled && c.store != nil
}

func (c *Coordinator) TripTTL() time.Duration       { return c.cfg.TripTTL }
func (c *Coordinator) ListTTL() time.Duration       { return c.cfg.ListTTL }
func (c *Coordinator) PermissionTTL() time.Duration { return c.cfg.PermissionTTL }

// Key builders

func TripKey(tripID string) string {
	return fmt.Sprintf("trip:%s", tripID)
}

func UserTripsKey(userID string, fingerprint uint64) string {
	return fmt.Sprintf("user:trips:%s:%x", userID, fingerprint)
}

func UserTripsPattern(userID string) string {
	return fmt.Sprintf("user:trips:%s:*", userID)
}

func PermissionKey(tripID, userID, permission string) string {
	return fmt.Sprintf("permission:%s:%s:%s", tripID, userID, permission)
}

func PermissionPattern(tripID, userID string) string {
	return fmt.Sprintf("permission:%s:%s:*", tripID, userID)
}

// Fingerprint derives a stable hash for a query shape (filters + page) so
// that each distinct list query gets its own cache slot.
func Fingerprint(v interface{}) uint64 {
	data, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return xxhash.Sum64(data)
}

// GetOrLoad reads key into dest on a hit; on a miss it invokes load,
// populates the cache best-effort and fills dest with the loaded value.
// Cache errors are logged and swallowed, never surfaced.
func (c *Coordinator) GetOrLoad(ctx context.Context, key string, ttl time.Duration, dest interface{}, load func(ctx context.Context) (interface{}, error)) error {
	if c.Enabled() {
		data, err := c.store.Get(ctx, key)
		if err == nil {
			if err := json.Unmarshal(data, dest); err == nil {
				return nil
			}
			// Corrupt entry: drop it and fall through to the loader.
			_ = c.store.Delete(ctx, key)
		} else if err != ErrMiss {
			log.Printf("[Cache] get %s failed: %v", key, err)
		}
	}

	value, err := load(ctx)
	if err != nil {
		return err
	}

	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if c.Enabled() {
		if err := c.store.Set(ctx, key, data, ttl); err != nil {
			log.Printf("[Cache] set %s failed: %v", key, err)
		}
	}
	return json.Unmarshal(data, dest)
}

// Invalidate drops the given keys. Deleting an absent key is a no-op.
func (c *Coordinator) Invalidate(ctx context.Context, keys ...string) {
	if !c.Enabled() {
		return
	}
	if err := c.store.Delete(ctx, keys...); err != nil {
		log.Printf("[Cache] invalidate %v failed: %v", keys, err)
	}
}

// InvalidateUserTrips drops every cached trip-list entry for the users.
func (c *Coordinator) InvalidateUserTrips(ctx context.Context, userIDs ...string) {
	if !c.Enabled() {
		return
	}
	for _, userID := range userIDs {
		if err := c.store.DeletePattern(ctx, UserTripsPattern(userID)); err != nil {
			log.Printf("[Cache] invalidate trip lists for user %s failed: %v", userID, err)
		}
	}
}

// InvalidatePermissions drops every cached permission decision for the
// user on the trip.
func (c *Coordinator) InvalidatePermissions(ctx context.Context, tripID, userID string) {
	if !c.Enabled() {
		return
	}
	if err := c.store.DeletePattern(ctx, PermissionPattern(tripID, userID)); err != nil {
		log.Printf("[Cache] invalidate permissions %s/%s failed: %v", tripID, userID, err)
	}
}

// InvalidateTripAndFanOut drops the trip document plus the trip-list
// entries of every user who was an accepted collaborator before the
// mutation. Best-effort: it never blocks or rolls back the write.
func (c *Coordinator) InvalidateTripAndFanOut(ctx context.Context, tripID string, acceptedCollaboratorIDs []string) {
	if !c.Enabled() {
		return
	}
	c.Invalidate(ctx, TripKey(tripID))
	c.InvalidateUserTrips(ctx, acceptedCollaboratorIDs...)
}
