package liveness

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RedisConfig Redis 活性通道配置。
type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	KeyPrefix string        `yaml:"key_prefix"`
	TTL       time.Duration `yaml:"ttl"`
	// WriteRate 每个任务实例向 Redis 透写证明的速率上限（次/秒）。
	// 携带新检查点的证明不受限流约束，保证最近检查点总是落盘。
	WriteRate float64 `yaml:"write_rate"`
	// TraceLen 每个任务实例保留的证明轨迹长度，0 表示不保留轨迹。
	TraceLen int64 `yaml:"trace_len"`
}

// DefaultRedisConfig 默认 Redis 通道配置。
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:      "localhost:6379",
		KeyPrefix: "taskflow:",
		TTL:       24 * time.Hour,
		WriteRate: 1.0,
		TraceLen:  256,
	}
}

// RedisChannel 基于 Redis 的活性通道，支持跨进程崩溃恢复。
// 纯周期性心跳会被限流合并，携带新检查点的证明总是立即透写。
type RedisChannel struct {
	client   *redis.Client
	config   RedisConfig
	logger   *zap.Logger
	limiters map[string]*rate.Limiter
	lastSeq  map[string]int64
	mu       sync.Mutex
}

// NewRedisChannel 创建 Redis 活性通道并校验连通性。
func NewRedisChannel(config RedisConfig, logger *zap.Logger) (*RedisChannel, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "taskflow:"
	}
	if config.WriteRate <= 0 {
		config.WriteRate = 1.0
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisChannel{
		client:   client,
		config:   config,
		logger:   logger.With(zap.String("component", "liveness_redis")),
		limiters: make(map[string]*rate.Limiter),
		lastSeq:  make(map[string]int64),
	}, nil
}

// Close 关闭底层连接。
func (c *RedisChannel) Close() error {
	return c.client.Close()
}

// Report 上报活性证明。写入失败只记录日志。
func (c *RedisChannel) Report(ctx context.Context, proof Proof) {
	if !c.shouldWrite(proof) {
		return
	}

	data, err := json.Marshal(proof)
	if err != nil {
		c.logger.Error("failed to marshal proof", zap.Error(err))
		return
	}

	pipe := c.client.Pipeline()
	pipe.Set(ctx, c.proofKey(proof.TaskInstanceID), data, c.config.TTL)
	if c.config.TraceLen > 0 {
		traceKey := c.traceKey(proof.TaskInstanceID)
		pipe.LPush(ctx, traceKey, data)
		pipe.LTrim(ctx, traceKey, 0, c.config.TraceLen-1)
		pipe.Expire(ctx, traceKey, c.config.TTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("failed to record liveness proof",
			zap.String("task_instance_id", proof.TaskInstanceID),
			zap.Error(err),
		)
	}
}

// shouldWrite 决定证明是否透写：新检查点总是透写，其余按速率合并。
func (c *RedisChannel) shouldWrite(proof Proof) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if proof.Checkpoint != nil && proof.Sequence != c.lastSeq[proof.TaskInstanceID] {
		c.lastSeq[proof.TaskInstanceID] = proof.Sequence
		return true
	}

	limiter, ok := c.limiters[proof.TaskInstanceID]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(c.config.WriteRate), 1)
		c.limiters[proof.TaskInstanceID] = limiter
	}
	return limiter.Allow()
}

// LastProof 返回最近一次活性证明。
func (c *RedisChannel) LastProof(ctx context.Context, taskInstanceID string) (*Proof, error) {
	data, err := c.client.Get(ctx, c.proofKey(taskInstanceID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load liveness proof: %w", err)
	}

	var proof Proof
	if err := json.Unmarshal(data, &proof); err != nil {
		return nil, fmt.Errorf("failed to unmarshal liveness proof: %w", err)
	}
	return &proof, nil
}

// Trace 返回任务实例最近的证明轨迹，最新的在前。
func (c *RedisChannel) Trace(ctx context.Context, taskInstanceID string, limit int64) ([]Proof, error) {
	raw, err := c.client.LRange(ctx, c.traceKey(taskInstanceID), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load liveness trace: %w", err)
	}

	proofs := make([]Proof, 0, len(raw))
	for _, item := range raw {
		var proof Proof
		if err := json.Unmarshal([]byte(item), &proof); err != nil {
			c.logger.Warn("skipping corrupt trace entry", zap.Error(err))
			continue
		}
		proofs = append(proofs, proof)
	}
	return proofs, nil
}

// Forget 删除任务实例的证明与轨迹。
func (c *RedisChannel) Forget(ctx context.Context, taskInstanceID string) error {
	c.mu.Lock()
	delete(c.limiters, taskInstanceID)
	delete(c.lastSeq, taskInstanceID)
	c.mu.Unlock()

	return c.client.Del(ctx, c.proofKey(taskInstanceID), c.traceKey(taskInstanceID)).Err()
}

func (c *RedisChannel) proofKey(taskInstanceID string) string {
	return c.config.KeyPrefix + "proof:" + taskInstanceID
}

func (c *RedisChannel) traceKey(taskInstanceID string) string {
	return c.config.KeyPrefix + "trace:" + taskInstanceID
}
