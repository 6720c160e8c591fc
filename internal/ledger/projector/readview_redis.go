package projector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/suriyanarayananvcet/my-granular-certificate-registry/internal/ledger"
)

const (
	bundleViewKey  = "gcr:view:bundles"
	lastAppliedKey = "gcr:view:last_sequence"
)

// RedisView is the shared projection for multi-instance deployments. A single
// projector owns writes; queries load the hash and filter in process, which
// holds up at registry scale where the working set is bounded by live bundles.
type RedisView struct {
	client *redis.Client
}

func NewRedisView(client *redis.Client) *RedisView {
	return &RedisView{client: client}
}

func (v *RedisView) Apply(ctx context.Context, event ledger.Event) error {
	last, err := v.LastApplied(ctx)
	if err != nil {
		return err
	}
	if event.Sequence <= last {
		return nil
	}

	pipe := v.client.TxPipeline()
	if bv, ok := viewFromEvent(event); ok {
		raw, err := json.Marshal(bv)
		if err != nil {
			return fmt.Errorf("encode bundle view: %w", err)
		}
		pipe.HSet(ctx, bundleViewKey, bv.BundleID.String(), raw)
	}
	pipe.Set(ctx, lastAppliedKey, event.Sequence, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("apply event %d: %w", event.Sequence, err)
	}
	return nil
}

func (v *RedisView) LastApplied(ctx context.Context) (uint64, error) {
	raw, err := v.client.Get(ctx, lastAppliedKey).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read projection cursor: %w", err)
	}
	seq, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse projection cursor: %w", err)
	}
	return seq, nil
}

func (v *RedisView) Query(ctx context.Context, q Query) ([]BundleView, error) {
	entries, err := v.client.HGetAll(ctx, bundleViewKey).Result()
	if err != nil {
		return nil, fmt.Errorf("load bundle views: %w", err)
	}

	var out []BundleView
	for _, raw := range entries {
		var bv BundleView
		if err := json.Unmarshal([]byte(raw), &bv); err != nil {
			return nil, fmt.Errorf("decode bundle view: %w", err)
		}
		if q.matches(bv) {
			out = append(out, bv)
		}
	}
	sortViews(out)
	return out, nil
}
