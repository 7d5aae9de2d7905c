package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"BullShip-Merchant/internal/wallet"

	"github.com/redis/go-redis/v9"
)

// SessionStoreConfig 描述会话存储的 Redis 连接参数。
type SessionStoreConfig struct {
	Address  string
	Password string
	DB       int
	TTL      time.Duration
	// KeyPrefix 默认为 bullship:session:。
	KeyPrefix string
}

// SessionStore 使用 Redis 键值保存钱包会话，过期依赖 Redis TTL。
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewSessionStore 建立 Redis 连接并验证可用性。
func NewSessionStore(cfg SessionStoreConfig) (*SessionStore, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "bullship:session:"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return &SessionStore{client: client, ttl: ttl, prefix: prefix}, nil
}

// Save 序列化会话并写入 Redis，同时设置 TTL。
func (s *SessionStore) Save(ctx context.Context, session *wallet.Session) error {
	if session == nil || strings.TrimSpace(session.Token) == "" {
		return errors.New("会话 token 不能为空")
	}
	now := time.Now()
	clone := *session
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = now
	}
	if clone.ExpiresAt.IsZero() {
		clone.ExpiresAt = clone.CreatedAt.Add(s.ttl)
	}
	payload, err := json.Marshal(&clone)
	if err != nil {
		return fmt.Errorf("序列化会话失败: %w", err)
	}
	ttl := time.Until(clone.ExpiresAt)
	if ttl <= 0 {
		ttl = s.ttl
	}
	if err := s.client.Set(ctx, s.key(clone.Token), payload, ttl).Err(); err != nil {
		return fmt.Errorf("写入会话失败: %w", err)
	}
	return nil
}

// Find 读取并反序列化指定 token 的会话。
func (s *SessionStore) Find(ctx context.Context, token string) (*wallet.Session, error) {
	payload, err := s.client.Get(ctx, s.key(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, wallet.ErrSessionNotFound
		}
		return nil, fmt.Errorf("读取会话失败: %w", err)
	}
	var session wallet.Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, fmt.Errorf("反序列化会话失败: %w", err)
	}
	if session.Expired(time.Now()) {
		_ = s.client.Del(ctx, s.key(token)).Err()
		return nil, wallet.ErrSessionNotFound
	}
	return &session, nil
}

// Delete 删除指定 token 的会话。
func (s *SessionStore) Delete(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, s.key(token)).Err(); err != nil {
		return fmt.Errorf("删除会话失败: %w", err)
	}
	return nil
}

// Close 关闭 Redis 连接。
func (s *SessionStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *SessionStore) key(token string) string {
	return s.prefix + token
}
