package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/adlift/bidpilot/internal/domain"
)

// ControlStateCache implements domain.ControlStateCache using Redis hashes.
// Each campaign's state is stored at key "ctl:{campaignID}" with fields
// "integral", "prev" (absent on cold start), and "ts" (Unix nanoseconds).
//
// Every Save refreshes the key TTL, so state for campaigns that stop being
// scheduled expires on its own. Expiry only resets the integral term; the
// controller treats a missing record as a fresh start.
type ControlStateCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewControlStateCache creates a ControlStateCache on the given client.
// ttl bounds how long idle state survives; zero means no expiry.
func NewControlStateCache(rdb *redis.Client, ttl time.Duration) *ControlStateCache {
	return &ControlStateCache{rdb: rdb, ttl: ttl}
}

func controlKey(campaignID string) string {
	return "ctl:" + campaignID
}

// Load retrieves the controller state for a campaign. It returns
// domain.ErrNotFound when the key does not exist or has expired.
func (cc *ControlStateCache) Load(ctx context.Context, campaignID string) (domain.ControlState, error) {
	vals, err := cc.rdb.HGetAll(ctx, controlKey(campaignID)).Result()
	if err != nil {
		return domain.ControlState{}, fmt.Errorf("redis: load control state %s: %w", campaignID, err)
	}
	if len(vals) == 0 {
		return domain.ControlState{}, domain.ErrNotFound
	}

	var st domain.ControlState

	if raw, ok := vals["integral"]; ok {
		st.Integral, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			return domain.ControlState{}, fmt.Errorf("redis: parse integral %s: %w", campaignID, err)
		}
	}

	if raw, ok := vals["prev"]; ok {
		prev, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return domain.ControlState{}, fmt.Errorf("redis: parse prev measurement %s: %w", campaignID, err)
		}
		st.PrevMeasurement = &prev
	}

	if raw, ok := vals["ts"]; ok {
		tsNano, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return domain.ControlState{}, fmt.Errorf("redis: parse ts %s: %w", campaignID, err)
		}
		st.LastUpdate = time.Unix(0, tsNano)
	}

	return st, nil
}

// Save overwrites the controller state for a campaign and refreshes the TTL.
func (cc *ControlStateCache) Save(ctx context.Context, campaignID string, st domain.ControlState) error {
	key := controlKey(campaignID)
	fields := map[string]interface{}{
		"integral": strconv.FormatFloat(st.Integral, 'f', -1, 64),
		"ts":       strconv.FormatInt(st.LastUpdate.UnixNano(), 10),
	}
	if st.PrevMeasurement != nil {
		fields["prev"] = strconv.FormatFloat(*st.PrevMeasurement, 'f', -1, 64)
	}

	pipe := cc.rdb.TxPipeline()
	pipe.HSet(ctx, key, fields)
	if cc.ttl > 0 {
		pipe.Expire(ctx, key, cc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: save control state %s: %w", campaignID, err)
	}
	return nil
}

// Delete removes the controller state for a campaign.
func (cc *ControlStateCache) Delete(ctx context.Context, campaignID string) error {
	if err := cc.rdb.Del(ctx, controlKey(campaignID)).Err(); err != nil {
		return fmt.Errorf("redis: delete control state %s: %w", campaignID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.ControlStateCache = (*ControlStateCache)(nil)
