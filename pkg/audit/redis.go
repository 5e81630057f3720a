// pkg/audit/redis.go
package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisSink appends events to a per-tenant capped stream, giving the
// audit trail a durable secondary channel outside the process.
type RedisSink struct {
	cli    *redis.Client
	prefix string
	maxLen int64
}

func NewRedisSink(cli *redis.Client) *RedisSink {
	return &RedisSink{cli: cli, prefix: "audit:", maxLen: 10000}
}

func (s *RedisSink) Emit(ctx context.Context, e Event) error {
	detail, _ := json.Marshal(e.Detail)
	return s.cli.XAdd(ctx, &redis.XAddArgs{
		Stream: s.prefix + e.TenantID,
		MaxLen: s.maxLen,
		Approx: true,
		Values: map[string]any{
			"ts":          e.Time.UnixMilli(),
			"tenant":      e.TenantID,
			"correlation": e.CorrelationID,
			"type":        string(e.Type),
			"detail":      string(detail),
		},
	}).Err()
}

func (s *RedisSink) String() string { return fmt.Sprintf("redis-stream(%s*)", s.prefix) }
