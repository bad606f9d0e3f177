package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/studyhive/studyhive/config"
)

// MemberCount is the cached aggregate behind the public member-count
// endpoint, the one read that is hot enough to shield from the database.
type MemberCount struct {
	Count    int `json:"count"`
	Capacity int `json:"capacity"`
}

type RedisClient interface {
	Close() error
	GetClient() *redis.Client
	Ping(ctx context.Context) error
	GetMemberCount(ctx context.Context, groupID string) (*MemberCount, error)
	SetMemberCount(ctx context.Context, groupID string, mc MemberCount, ttl time.Duration) error
	InvalidateMemberCount(ctx context.Context, groupID string) error
}

type Client struct {
	client *redis.Client
}

func NewClient(cfg *config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{client: rdb}, nil
}

// NewClientFromRedis wraps an existing go-redis client (used by tests).
func NewClientFromRedis(rdb *redis.Client) *Client {
	return &Client{client: rdb}
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) GetClient() *redis.Client {
	return c.client
}

func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// GetMemberCount returns the cached count for groupID, or nil on a miss.
func (c *Client) GetMemberCount(ctx context.Context, groupID string) (*MemberCount, error) {
	data, err := c.client.Get(ctx, memberCountKey(groupID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get member count for group %s: %w", groupID, err)
	}

	var mc MemberCount
	if err := json.Unmarshal([]byte(data), &mc); err != nil {
		// A corrupt entry is a miss; the caller refills it.
		return nil, nil
	}
	return &mc, nil
}

func (c *Client) SetMemberCount(ctx context.Context, groupID string, mc MemberCount, ttl time.Duration) error {
	data, err := json.Marshal(mc)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, memberCountKey(groupID), data, ttl).Err()
}

func (c *Client) InvalidateMemberCount(ctx context.Context, groupID string) error {
	return c.client.Del(ctx, memberCountKey(groupID)).Err()
}

func memberCountKey(groupID string) string {
	return "group:membercount:" + groupID
}
