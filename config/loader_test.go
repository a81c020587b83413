// 配置加载器与默认配置测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- 默认配置测试 ---

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	// 验证服务器默认值
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)

	// 验证执行器默认值
	assert.Equal(t, 5*time.Second, cfg.Worker.HeartbeatInterval)
	assert.Equal(t, 30*time.Second, cfg.Worker.HeartbeatTimeout)
	assert.Equal(t, 3, cfg.Worker.MaxAttempts)
	assert.Equal(t, 1*time.Second, cfg.Worker.RetryInitialDelay)

	// 验证编排默认值
	assert.Equal(t, 30*time.Second, cfg.Pipeline.SignalTimeout)
	assert.False(t, cfg.Pipeline.InventoryDown)

	// 验证 Redis 默认值
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "taskflow:", cfg.Redis.KeyPrefix)
	assert.Equal(t, 24*time.Hour, cfg.Redis.ProofTTL)

	// 验证 Database 默认值
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "taskflow.db", cfg.Database.Name)

	// 验证 Log 默认值
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestDefaultConfig_PassesValidation(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

// --- Loader 测试 ---

func TestLoader_LoadDefaults(t *testing.T) {
	// 不指定配置文件，应该返回默认值
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 3, cfg.Worker.MaxAttempts)
}

func TestLoader_LoadFromFile(t *testing.T) {
	content := `
server:
  http_port: 9000
worker:
  heartbeat_interval: 2s
  heartbeat_timeout: 10s
  max_attempts: 5
pipeline:
  signal_timeout: 1m
redis:
  enabled: true
  addr: "redis.internal:6379"
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.HTTPPort)
	assert.Equal(t, 2*time.Second, cfg.Worker.HeartbeatInterval)
	assert.Equal(t, 10*time.Second, cfg.Worker.HeartbeatTimeout)
	assert.Equal(t, 5, cfg.Worker.MaxAttempts)
	assert.Equal(t, time.Minute, cfg.Pipeline.SignalTimeout)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis.internal:6379", cfg.Redis.Addr)

	// 文件未覆盖的字段保持默认值
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
}

func TestLoader_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/config.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoader_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0644))

	_, err := NewLoader().WithConfigPath(path).Load()
	assert.Error(t, err)
}

func TestLoader_EnvOverrides(t *testing.T) {
	t.Setenv("TASKFLOW_SERVER_HTTP_PORT", "7777")
	t.Setenv("TASKFLOW_WORKER_HEARTBEAT_INTERVAL", "500ms")
	t.Setenv("TASKFLOW_WORKER_HEARTBEAT_TIMEOUT", "1500ms")
	t.Setenv("TASKFLOW_REDIS_ENABLED", "true")
	t.Setenv("TASKFLOW_REDIS_WRITE_RATE", "2.5")
	t.Setenv("TASKFLOW_LOG_OUTPUT_PATHS", "stdout, /var/log/taskflow.log")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Server.HTTPPort)
	assert.Equal(t, 500*time.Millisecond, cfg.Worker.HeartbeatInterval)
	assert.Equal(t, 1500*time.Millisecond, cfg.Worker.HeartbeatTimeout)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 2.5, cfg.Redis.WriteRate)
	assert.Equal(t, []string{"stdout", "/var/log/taskflow.log"}, cfg.Log.OutputPaths)
}

func TestLoader_EnvBeatsFile(t *testing.T) {
	content := "server:\n  http_port: 9000\n"
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	t.Setenv("TASKFLOW_SERVER_HTTP_PORT", "9001")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)
	assert.Equal(t, 9001, cfg.Server.HTTPPort, "环境变量优先于文件")
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	t.Setenv("MYAPP_SERVER_HTTP_PORT", "6060")

	cfg, err := NewLoader().WithEnvPrefix("MYAPP").Load()
	require.NoError(t, err)
	assert.Equal(t, 6060, cfg.Server.HTTPPort)
}

func TestLoader_InvalidEnvValue(t *testing.T) {
	t.Setenv("TASKFLOW_SERVER_HTTP_PORT", "not-a-number")

	_, err := NewLoader().Load()
	assert.Error(t, err)
}

func TestLoader_ValidatorRuns(t *testing.T) {
	_, err := NewLoader().
		WithValidator(func(cfg *Config) error {
			return assert.AnError
		}).
		Load()
	assert.Error(t, err)
}

// --- Validate 测试 ---

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "默认配置合法",
			mutate:  func(cfg *Config) {},
			wantErr: "",
		},
		{
			name:    "端口越界",
			mutate:  func(cfg *Config) { cfg.Server.HTTPPort = 70000 },
			wantErr: "invalid HTTP port",
		},
		{
			name:    "心跳间隔非正",
			mutate:  func(cfg *Config) { cfg.Worker.HeartbeatInterval = 0 },
			wantErr: "heartbeat_interval",
		},
		{
			name: "心跳超时窗口太窄",
			mutate: func(cfg *Config) {
				cfg.Worker.HeartbeatInterval = 10 * time.Second
				cfg.Worker.HeartbeatTimeout = 20 * time.Second
			},
			wantErr: "heartbeat_timeout must be at least 3x",
		},
		{
			name:    "尝试次数非正",
			mutate:  func(cfg *Config) { cfg.Worker.MaxAttempts = 0 },
			wantErr: "max_attempts",
		},
		{
			name:    "信号超时非正",
			mutate:  func(cfg *Config) { cfg.Pipeline.SignalTimeout = 0 },
			wantErr: "signal_timeout",
		},
		{
			name: "指标端口越界",
			mutate: func(cfg *Config) {
				cfg.Metrics.Enabled = true
				cfg.Metrics.Port = -1
			},
			wantErr: "invalid metrics port",
		},
		{
			name: "指标关闭时端口不校验",
			mutate: func(cfg *Config) {
				cfg.Metrics.Enabled = false
				cfg.Metrics.Port = -1
			},
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

// --- DSN 测试 ---

func TestDatabaseConfig_DSN(t *testing.T) {
	pg := DatabaseConfig{
		Driver: "postgres", Host: "db.internal", Port: 5432,
		User: "taskflow", Password: "secret", Name: "pipelines", SSLMode: "require",
	}
	assert.Equal(t,
		"host=db.internal port=5432 user=taskflow password=secret dbname=pipelines sslmode=require",
		pg.DSN())

	my := DatabaseConfig{
		Driver: "mysql", Host: "db.internal", Port: 3306,
		User: "taskflow", Password: "secret", Name: "pipelines",
	}
	assert.Equal(t, "taskflow:secret@tcp(db.internal:3306)/pipelines?parseTime=true", my.DSN())

	lite := DatabaseConfig{Driver: "sqlite", Name: "/data/taskflow.db"}
	assert.Equal(t, "/data/taskflow.db", lite.DSN())

	unknown := DatabaseConfig{Driver: "oracle"}
	assert.Empty(t, unknown.DSN())
}
