package server

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	cfg.ShutdownTimeout = 2 * time.Second
	return cfg
}

func TestManager_StartServesRequests(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ping", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("pong"))
	})

	mgr := NewManager(mux, testConfig(), zap.NewNop())
	require.NoError(t, mgr.Start())
	defer func() { _ = mgr.Shutdown(context.Background()) }()

	resp, err := http.Get("http://" + mgr.Addr() + "/ping")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pong", string(body))
}

func TestManager_DoubleStartRejected(t *testing.T) {
	mgr := NewManager(http.NewServeMux(), testConfig(), zap.NewNop())
	require.NoError(t, mgr.Start())
	defer func() { _ = mgr.Shutdown(context.Background()) }()

	assert.Error(t, mgr.Start())
}

func TestManager_ShutdownIsIdempotent(t *testing.T) {
	mgr := NewManager(http.NewServeMux(), testConfig(), zap.NewNop())
	require.NoError(t, mgr.Start())

	require.NoError(t, mgr.Shutdown(context.Background()))
	assert.NoError(t, mgr.Shutdown(context.Background()), "重复关闭无副作用")
	assert.Error(t, mgr.Start(), "关闭后不能再启动")
}

func TestManager_AddrBeforeStart(t *testing.T) {
	cfg := testConfig()
	mgr := NewManager(http.NewServeMux(), cfg, zap.NewNop())
	assert.Equal(t, cfg.Addr, mgr.Addr(), "未启动时返回配置地址")
}

func TestManager_ListenFailure(t *testing.T) {
	cfg := testConfig()
	// 先占住一个端口
	holder := NewManager(http.NewServeMux(), cfg, zap.NewNop())
	require.NoError(t, holder.Start())
	defer func() { _ = holder.Shutdown(context.Background()) }()

	cfg.Addr = holder.Addr()
	mgr := NewManager(http.NewServeMux(), cfg, zap.NewNop())
	assert.Error(t, mgr.Start())
}
