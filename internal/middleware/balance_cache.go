package middleware

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultBalanceTTL = 5 * time.Minute

// BalanceCache 余额缓存，只用于读路径
type BalanceCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewBalanceCache 创建余额缓存，client 为 nil 时所有操作都是空操作
func NewBalanceCache(client *redis.Client, ttl time.Duration) *BalanceCache {
	if ttl <= 0 {
		ttl = defaultBalanceTTL
	}
	return &BalanceCache{client: client, ttl: ttl}
}

// Enabled 是否配置了Redis
func (c *BalanceCache) Enabled() bool {
	return c != nil && c.client != nil
}

func balanceKey(userID uint, asset string) string {
	return fmt.Sprintf("balance:%d:%s", userID, asset)
}

// Get 获取缓存余额（stroop），未命中时 ok 为 false
func (c *BalanceCache) Get(ctx context.Context, userID uint, asset string) (int64, bool, error) {
	if !c.Enabled() {
		return 0, false, nil
	}

	val, err := c.client.Get(ctx, balanceKey(userID, asset)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	amount, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid cached balance %q: %w", val, err)
	}
	return amount, true, nil
}

// Fill 缓存未命中时回填，键已存在则不覆盖
func (c *BalanceCache) Fill(ctx context.Context, userID uint, asset string, amount int64) error {
	if !c.Enabled() {
		return nil
	}
	return c.client.SetNX(ctx, balanceKey(userID, asset), strconv.FormatInt(amount, 10), c.ttl).Err()
}

// Invalidate 删除缓存，余额变更提交后调用
func (c *BalanceCache) Invalidate(ctx context.Context, userID uint, asset string) error {
	if !c.Enabled() {
		return nil
	}
	return c.client.Del(ctx, balanceKey(userID, asset)).Err()
}
