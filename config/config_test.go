package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"pibot/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdirTemp 切到空目录，避免读取仓库里的 .env
func chdirTemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, market.Pair{Base: "PI", Quote: "USDT"}, cfg.TradingPair())
	assert.Equal(t, 60*time.Second, cfg.Trading.PollInterval)
	assert.Equal(t, 300*time.Second, cfg.Trading.Cooldown)
	assert.Equal(t, 10.0, cfg.Trading.MinNotional)
	assert.Equal(t, "5m", cfg.Trading.KlineInterval)
	assert.Equal(t, 20, cfg.Trading.KlineLimit)
}

func TestLoadYAML(t *testing.T) {
	path, err := filepath.Abs(filepath.Join("testdata", "config.yaml"))
	require.NoError(t, err)
	chdirTemp(t)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ModePaper, cfg.Mode)
	assert.Equal(t, "PI/USDT", cfg.TradingPair().String())
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Exchange.Testnet)
	assert.Equal(t, 3, cfg.Exchange.QuantityPrecision)
	assert.Equal(t, 5*time.Second, cfg.Exchange.Timeout)
	assert.Equal(t, 0.5, cfg.Params().OrderSizeFraction)
	assert.Equal(t, 30*time.Second, cfg.Trading.PollInterval)
	assert.Equal(t, 10*time.Minute, cfg.Trading.Cooldown)
	assert.Equal(t, 250.0, cfg.Paper.Balances["USDT"])
	assert.Equal(t, "127.0.0.1:9090", cfg.API.Addr)

	// 未在文件中出现的字段保留默认值
	assert.Equal(t, 2.0, cfg.Trading.BackoffMultiplier)
	assert.Equal(t, 0.02, cfg.Trading.VolatilityThreshold)

	opts := cfg.EngineOptions()
	assert.Equal(t, "15m", opts.KlineInterval)
	assert.Equal(t, 30, opts.KlineLimit)
	assert.Equal(t, 5.0, opts.MinNotional)
}

func TestEnvOverrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("BINANCE_API_KEY", "key")
	t.Setenv("BINANCE_SECRET_KEY", "secret")
	t.Setenv("BOT_MODE", "live")
	t.Setenv("TELEGRAM_TOKEN", "123:abc")
	t.Setenv("TELEGRAM_CHAT_ID", "424242")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ModeLive, cfg.Mode)
	assert.Equal(t, "key", cfg.Exchange.APIKey)
	assert.Equal(t, int64(424242), cfg.Telegram.ChatID)
	assert.True(t, cfg.Telegram.Enabled)
}

func TestDotEnvFile(t *testing.T) {
	chdirTemp(t)
	require.NoError(t, os.WriteFile(".env", []byte("BOT_PAIR=PI_USDC\n"), 0o600))
	// 由 t.Setenv 负责测试结束后恢复，godotenv 只会写入不存在的变量
	t.Setenv("BOT_PAIR", "")
	require.NoError(t, os.Unsetenv("BOT_PAIR"))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "PI/USDC", cfg.TradingPair().String())
}

func TestInvalidChatID(t *testing.T) {
	chdirTemp(t)
	t.Setenv("TELEGRAM_CHAT_ID", "not-a-number")
	_, err := Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Mode = "yolo"
	cfg.Trading.OrderSizeFraction = 0
	cfg.Trading.PollInterval = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mode")
	assert.Contains(t, err.Error(), "order_size_fraction")
	assert.Contains(t, err.Error(), "poll_interval")

	cfg = Default()
	cfg.Mode = ModeLive
	assert.ErrorContains(t, cfg.Validate(), "BINANCE_API_KEY")

	cfg = Default()
	cfg.API.Enabled = true
	assert.ErrorContains(t, cfg.Validate(), "jwt_secret")
}

func TestValidateKlineLimit(t *testing.T) {
	cfg := Default()
	cfg.Trading.KlineLimit = 10
	assert.ErrorContains(t, cfg.Validate(), "kline_limit must be at least 16")

	cfg.Trading.KlineLimit = 16
	assert.NoError(t, cfg.Validate())

	// 0 表示使用引擎默认值
	cfg.Trading.KlineLimit = 0
	assert.NoError(t, cfg.Validate())
}
