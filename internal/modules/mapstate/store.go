// README: Map state snapshot store backed by Redis; lets a session resume its map after a restart.
package mapstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"chatmap/internal/types"
)

const (
	snapshotKeyPrefix = "mapstate:session:%s"
	markerKeyPrefix   = "mapstate:markers:%s"
	sessionIndexKey   = "mapstate:sessions"
	// TTL for snapshots; idle conversations are not worth restoring after a day.
	snapshotTTL = 24 * time.Hour
	// WATCH conflicts retried before Save gives up.
	maxSaveAttempts = 3
)

// ErrStaleSnapshot is returned by Save when Redis already holds the same or a newer version.
var ErrStaleSnapshot = errors.New("mapstate: stored snapshot is newer")

// Snapshot is the persisted form of a Holder.
type Snapshot struct {
	Version   uint64    `json:"version"`
	State     State     `json:"state"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Store struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewStore(redis *redis.Client) *Store {
	return &Store{redis: redis, ttl: snapshotTTL}
}

// Save writes the snapshot, rebuilds the session's marker GEO set and records
// the session in the index sorted by update time. The write is a compare-and-set
// on Version: when the stored snapshot is not older, nothing changes and
// ErrStaleSnapshot is returned.
func (s *Store) Save(ctx context.Context, sessionID string, snap Snapshot) error {
	if snap.UpdatedAt.IsZero() {
		snap.UpdatedAt = time.Now().UTC()
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("mapstate: marshal snapshot: %w", err)
	}

	key := snapshotKey(sessionID)
	write := func(tx *redis.Tx) error {
		current, ok, err := storedVersion(ctx, tx, key)
		if err != nil {
			return err
		}
		if ok && current >= snap.Version {
			return ErrStaleSnapshot
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, s.ttl)
			pipe.Del(ctx, markerKey(sessionID))
			if len(snap.State.Markers) > 0 {
				members := make([]*redis.GeoLocation, len(snap.State.Markers))
				for i, m := range snap.State.Markers {
					members[i] = &redis.GeoLocation{Name: m.ID, Longitude: m.Longitude, Latitude: m.Latitude}
				}
				pipe.GeoAdd(ctx, markerKey(sessionID), members...)
				pipe.Expire(ctx, markerKey(sessionID), s.ttl)
			}
			pipe.ZAdd(ctx, sessionIndexKey, redis.Z{Score: float64(snap.UpdatedAt.Unix()), Member: sessionID})
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		err = s.redis.Watch(ctx, write, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("mapstate: save snapshot for %s: %w", sessionID, err)
}

// storedVersion reads the version of the snapshot at key inside a WATCH.
func storedVersion(ctx context.Context, tx *redis.Tx, key string) (uint64, bool, error) {
	raw, err := tx.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	var head struct {
		Version uint64 `json:"version"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		// Unreadable snapshots are overwritten.
		return 0, false, nil
	}
	return head.Version, true, nil
}

// Nearby is a marker id with its distance from the query point.
type Nearby struct {
	ID         string  `json:"id"`
	DistanceKm float64 `json:"distance_km"`
}

// Nearby returns the session's markers within radiusKm of p, closest first.
func (s *Store) Nearby(ctx context.Context, sessionID string, p types.Point, radiusKm float64) ([]Nearby, error) {
	locs, err := s.redis.GeoRadius(ctx, markerKey(sessionID), p.Lng, p.Lat, &redis.GeoRadiusQuery{
		Radius:   radiusKm,
		Unit:     "km",
		WithDist: true,
		Sort:     "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Nearby, len(locs))
	for i, l := range locs {
		out[i] = Nearby{ID: l.Name, DistanceKm: l.Dist}
	}
	return out, nil
}

// Load returns the stored snapshot and whether one exists.
func (s *Store) Load(ctx context.Context, sessionID string) (Snapshot, bool, error) {
	raw, err := s.redis.Get(ctx, snapshotKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, err
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return Snapshot{}, false, fmt.Errorf("mapstate: unmarshal snapshot: %w", err)
	}
	return snap, true, nil
}

// Prune drops index entries older than cutoff; their snapshot keys expire on their own.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.redis.ZRemRangeByScore(ctx, sessionIndexKey, "-inf", fmt.Sprintf("%d", cutoff.Unix())).Result()
}

func snapshotKey(sessionID string) string {
	return fmt.Sprintf(snapshotKeyPrefix, sessionID)
}

func markerKey(sessionID string) string {
	return fmt.Sprintf(markerKeyPrefix, sessionID)
}
