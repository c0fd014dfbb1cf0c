package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/rueidis"

	"github.com/marcoavk/urban-plan-assistant/internal/core/domain"
)

// AnswerCache keeps synthesized answers in Redis under the pipeline's cache
// key. A cache outage degrades to recomputing answers, so every failure is
// wrapped as temporary.
type AnswerCache struct {
	client rueidis.Client
}

func New(addr string) (*AnswerCache, error) {
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress: []string{addr},
	})
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return &AnswerCache{client: client}, nil
}

func (c *AnswerCache) Close() {
	if c.client != nil {
		c.client.Close()
	}
}

func (c *AnswerCache) Get(ctx context.Context, key string) (*domain.SynthesisResult, bool, error) {
	raw, err := c.client.Do(ctx, c.client.B().Get().Key(key).Build()).AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, false, nil
		}
		return nil, false, domain.WrapError(domain.ErrTemporary, "cache get", err)
	}

	var result domain.SynthesisResult
	if err := json.Unmarshal(raw, &result); err != nil {
		// A corrupt entry reads as a miss; the fresh answer overwrites it.
		return nil, false, nil
	}
	return &result, true, nil
}

func (c *AnswerCache) Set(ctx context.Context, key string, result domain.SynthesisResult, ttl time.Duration) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal cached answer: %w", err)
	}

	cmd := c.client.B().Set().Key(key).Value(rueidis.BinaryString(raw)).Ex(ttl).Build()
	if err := c.client.Do(ctx, cmd).Error(); err != nil {
		return domain.WrapError(domain.ErrTemporary, "cache set", err)
	}
	return nil
}
