package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// m600:status:{link} Hash，field 为 "模块ID:命令码"
	statusKeyFmt = "m600:status:%s"
	fieldFmt     = "%d:%d"
	defaultTTL   = 10 * time.Minute
)

// ErrStatusNotFound 缓存中没有该模块该命令的状态
var ErrStatusNotFound = errors.New("status not cached")

// CachedStatus 某链路某模块某命令最近一次应答
type CachedStatus struct {
	LinkID  string            `json:"link_id"`
	Module  uint8             `json:"module"`
	Command uint8             `json:"command"`
	Fields  map[string]string `json:"fields"`
	Summary string            `json:"summary"`
	At      time.Time         `json:"at"`
}

// StatusCache 跨进程共享的最新状态缓存（HTTP 查询与外部面板读取）
type StatusCache struct {
	client *Client
	ttl    time.Duration
}

// NewStatusCache ttl<=0 时使用默认 10 分钟
func NewStatusCache(client *Client, ttl time.Duration) *StatusCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &StatusCache{client: client, ttl: ttl}
}

func statusKey(linkID string) string { return fmt.Sprintf(statusKeyFmt, linkID) }

func statusField(module, command uint8) string { return fmt.Sprintf(fieldFmt, module, command) }

// Set 写入并刷新整条链路的过期时间
func (c *StatusCache) Set(ctx context.Context, s *CachedStatus) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}
	key := statusKey(s.LinkID)
	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, key, statusField(s.Module, s.Command), data)
	pipe.Expire(ctx, key, c.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// Get 读取某模块某命令的状态
func (c *StatusCache) Get(ctx context.Context, linkID string, module, command uint8) (*CachedStatus, error) {
	data, err := c.client.HGet(ctx, statusKey(linkID), statusField(module, command)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrStatusNotFound
	}
	if err != nil {
		return nil, err
	}
	var s CachedStatus
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal status: %w", err)
	}
	return &s, nil
}

// List 读取链路下全部状态（按模块、命令排序），损坏的条目被跳过
func (c *StatusCache) List(ctx context.Context, linkID string) ([]CachedStatus, error) {
	all, err := c.client.HGetAll(ctx, statusKey(linkID)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]CachedStatus, 0, len(all))
	for _, v := range all {
		var s CachedStatus
		if err := json.Unmarshal([]byte(v), &s); err != nil {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Module != out[j].Module {
			return out[i].Module < out[j].Module
		}
		return out[i].Command < out[j].Command
	})
	return out, nil
}

// Clear 删除链路全部缓存
func (c *StatusCache) Clear(ctx context.Context, linkID string) error {
	return c.client.Del(ctx, statusKey(linkID)).Err()
}
