package liveness

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupRedisChannel(t *testing.T, cfg RedisConfig) (*miniredis.Miniredis, *RedisChannel) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg.Addr = mr.Addr()
	channel, err := NewRedisChannel(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { channel.Close() })

	return mr, channel
}

func TestRedisChannel_ReportAndLastProof(t *testing.T) {
	_, channel := setupRedisChannel(t, DefaultRedisConfig())
	ctx := context.Background()

	checkpoint := json.RawMessage(`{"last_index":1}`)
	channel.Report(ctx, Proof{
		TaskInstanceID: "t1",
		Sequence:       1,
		StepName:       "pack_item",
		Checkpoint:     checkpoint,
		At:             time.Now(),
	})

	proof, err := channel.LastProof(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, proof)
	assert.Equal(t, int64(1), proof.Sequence)
	assert.JSONEq(t, `{"last_index":1}`, string(proof.Checkpoint))
}

func TestRedisChannel_LastProofMissing(t *testing.T) {
	_, channel := setupRedisChannel(t, DefaultRedisConfig())

	proof, err := channel.LastProof(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, proof)
}

func TestRedisChannel_CheckpointBypassesThrottle(t *testing.T) {
	cfg := DefaultRedisConfig()
	cfg.WriteRate = 0.001 // 几乎不允许纯心跳透写
	_, channel := setupRedisChannel(t, cfg)
	ctx := context.Background()

	// 连续三个携带新检查点的证明全部落盘
	for seq := int64(1); seq <= 3; seq++ {
		channel.Report(ctx, Proof{
			TaskInstanceID: "t1",
			Sequence:       seq,
			Checkpoint:     json.RawMessage(fmt.Sprintf(`{"i":%d}`, seq)),
		})
	}

	proof, err := channel.LastProof(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, proof)
	assert.Equal(t, int64(3), proof.Sequence, "新检查点不受限流约束")
}

func TestRedisChannel_PureTicksThrottled(t *testing.T) {
	cfg := DefaultRedisConfig()
	cfg.WriteRate = 1000 // 首个令牌立即可用，其后按速率发放
	_, channel := setupRedisChannel(t, cfg)
	ctx := context.Background()

	// 同序列、无新检查点的心跳风暴
	for i := 0; i < 50; i++ {
		channel.Report(ctx, Proof{TaskInstanceID: "t1", Sequence: 0})
	}

	trace, err := channel.Trace(ctx, "t1", 64)
	require.NoError(t, err)
	assert.Less(t, len(trace), 50, "纯心跳被限流合并")
	assert.NotEmpty(t, trace, "至少一条心跳透写")
}

func TestRedisChannel_TraceNewestFirst(t *testing.T) {
	_, channel := setupRedisChannel(t, DefaultRedisConfig())
	ctx := context.Background()

	for seq := int64(1); seq <= 3; seq++ {
		channel.Report(ctx, Proof{
			TaskInstanceID: "t1",
			Sequence:       seq,
			Checkpoint:     json.RawMessage(`{}`),
		})
	}

	trace, err := channel.Trace(ctx, "t1", 10)
	require.NoError(t, err)
	require.Len(t, trace, 3)
	assert.Equal(t, int64(3), trace[0].Sequence)
	assert.Equal(t, int64(1), trace[2].Sequence)
}

func TestRedisChannel_Forget(t *testing.T) {
	_, channel := setupRedisChannel(t, DefaultRedisConfig())
	ctx := context.Background()

	channel.Report(ctx, Proof{TaskInstanceID: "t1", Sequence: 1, Checkpoint: json.RawMessage(`{}`)})
	require.NoError(t, channel.Forget(ctx, "t1"))

	proof, err := channel.LastProof(ctx, "t1")
	require.NoError(t, err)
	assert.Nil(t, proof)

	trace, err := channel.Trace(ctx, "t1", 10)
	require.NoError(t, err)
	assert.Empty(t, trace)
}

func TestRedisChannel_ProofSurvivesReconnect(t *testing.T) {
	mr, channel := setupRedisChannel(t, DefaultRedisConfig())
	ctx := context.Background()

	channel.Report(ctx, Proof{
		TaskInstanceID: "t1",
		Sequence:       4,
		Checkpoint:     json.RawMessage(`{"last_index":4}`),
	})
	require.NoError(t, channel.Close())

	// 模拟 worker 进程重启：新通道连到同一 Redis
	cfg := DefaultRedisConfig()
	cfg.Addr = mr.Addr()
	rebooted, err := NewRedisChannel(cfg, zap.NewNop())
	require.NoError(t, err)
	defer rebooted.Close()

	proof, err := rebooted.LastProof(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, proof)
	assert.JSONEq(t, `{"last_index":4}`, string(proof.Checkpoint))
}
