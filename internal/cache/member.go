// Package cache 基于 Redis 的在群成员缓存。
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"sudooom.im.group/internal/config"
)

const (
	// memberKeyPrefix 在群成员 Key 前缀: im:group:members:{groupId} -> JSON 数组
	memberKeyPrefix = "im:group:members:"

	// DefaultMemberTTL 成员缓存默认 TTL
	DefaultMemberTTL = 5 * time.Minute

	// generationTTL 代数 Key 的 TTL，需远大于一次回源的耗时
	generationTTL = 24 * time.Hour
)

// buildMemberKey 构建成员缓存 Key
func buildMemberKey(groupId int64) string {
	return fmt.Sprintf("%s%d", memberKeyPrefix, groupId)
}

// buildGenerationKey 构建成员缓存代数 Key: im:group:members:{groupId}:gen
func buildGenerationKey(groupId int64) string {
	return buildMemberKey(groupId) + ":gen"
}

// setIfGenerationScript 代数未变化时才写入成员列表
// KEYS[1] 成员 Key, KEYS[2] 代数 Key; ARGV[1] 回源前的代数, ARGV[2] 成员 JSON, ARGV[3] TTL 毫秒
var setIfGenerationScript = redis.NewScript(`
local gen = redis.call('GET', KEYS[2])
if (gen or '0') ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// NewClient 创建 Redis 客户端
func NewClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

// MemberCache 在群成员缓存
type MemberCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewMemberCache 创建成员缓存，ttl <= 0 时使用默认值
func NewMemberCache(rdb *redis.Client, ttl time.Duration) *MemberCache {
	if ttl <= 0 {
		ttl = DefaultMemberTTL
	}
	return &MemberCache{
		rdb:    rdb,
		ttl:    ttl,
		logger: slog.Default(),
	}
}

// GetMembers 读取群成员列表，ok 为 false 表示未命中
func (c *MemberCache) GetMembers(ctx context.Context, groupId int64) ([]string, bool, error) {
	data, err := c.rdb.Get(ctx, buildMemberKey(groupId)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var members []string
	if err := json.Unmarshal([]byte(data), &members); err != nil {
		// 损坏的缓存按未命中处理，由调用方回源覆盖
		c.logger.Warn("Corrupt member cache entry", "groupId", groupId, "error", err)
		return nil, false, nil
	}
	return members, true, nil
}

// Generation 读取成员缓存代数，回源前调用；未失效过的群组为 0
func (c *MemberCache) Generation(ctx context.Context, groupId int64) (int64, error) {
	gen, err := c.rdb.Get(ctx, buildGenerationKey(groupId)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// SetMembers 写入群成员列表。回源期间发生过 Invalidate（代数变化）时放弃写入，返回 false
func (c *MemberCache) SetMembers(ctx context.Context, groupId, generation int64, members []string) (bool, error) {
	if members == nil {
		members = []string{}
	}
	data, err := json.Marshal(members)
	if err != nil {
		return false, fmt.Errorf("failed to marshal members: %w", err)
	}

	keys := []string{buildMemberKey(groupId), buildGenerationKey(groupId)}
	stored, err := setIfGenerationScript.Run(ctx, c.rdb, keys,
		strconv.FormatInt(generation, 10), data, c.ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return stored == 1, nil
}

// Invalidate 删除若干群组的成员缓存并推进代数，使进行中的回源结果作废
func (c *MemberCache) Invalidate(ctx context.Context, groupIds ...int64) error {
	if len(groupIds) == 0 {
		return nil
	}
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range groupIds {
			genKey := buildGenerationKey(id)
			pipe.Incr(ctx, genKey)
			pipe.Expire(ctx, genKey, generationTTL)
			pipe.Del(ctx, buildMemberKey(id))
		}
		return nil
	})
	return err
}

// Ping 检查 Redis 连接
func (c *MemberCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
