package main

import (
	"context"
	"errors"
	"flag"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"pibot/api"
	"pibot/config"
	"pibot/decision"
	"pibot/logger"
	"pibot/market"
	"pibot/metrics"
	"pibot/notify"
	"pibot/store"
	"pibot/trader"

	"github.com/rs/zerolog"
)

const defaultConfigPath = "config.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "配置文件路径（默认文件不存在时仅使用内置默认值与环境变量）")
	flag.Parse()

	if _, err := os.Stat(*configPath); err != nil && *configPath == defaultConfigPath {
		*configPath = ""
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		boot := logger.New(logger.Options{Pretty: true})
		boot.Fatal().Err(err).Msg("❌ 加载配置失败")
	}

	log := logger.New(logger.Options{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})
	log.Info().Str("mode", cfg.Mode).Str("pair", cfg.TradingPair().String()).Msg("🚀 PI 交易机器人启动")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("❌ 运行失败")
	}
	log.Info().Msg("👋 已退出")
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	exchange := newExchange(cfg, log)

	params, err := trader.NewParamStore(cfg.Params())
	if err != nil {
		return err
	}

	var src decision.RandSource
	chatterSeed := time.Now().UnixNano()
	if cfg.Trading.Seed != 0 {
		src = rand.New(rand.NewSource(cfg.Trading.Seed))
		chatterSeed = cfg.Trading.Seed + 1
	}
	analyzer := decision.NewAnalyzer(cfg.Trading.VolatilityThreshold, src)

	m := metrics.NewMetrics(nil)

	if dir := filepath.Dir(cfg.Journal.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	journal, err := store.Open(cfg.Journal.Path, log)
	if err != nil {
		return err
	}
	defer journal.Close()

	hub := notify.NewHub(log)
	defer hub.Close()
	notifiers := notify.Multi{notify.LogNotifier{Log: log}, hub}

	var bot *notify.TelegramBot
	if cfg.Telegram.Enabled {
		bot, err = notify.NewTelegramBot(notify.TelegramOptions{
			Token:  cfg.Telegram.Token,
			ChatID: cfg.Telegram.ChatID,
			Pair:   cfg.TradingPair().String(),
		}, nil, journal, log)
		if err != nil {
			return err
		}
		notifiers = append(notifiers, bot)
	}

	engine, err := trader.NewEngine(cfg.EngineOptions(), trader.Deps{
		Exchange: exchange,
		Analyzer: analyzer,
		Params:   params,
		Notifier: notifiers,
		Journal:  journal,
		Metrics:  m,
		Chatter:  rand.New(rand.NewSource(chatterSeed)),
		Logger:   log,
	})
	if err != nil {
		return err
	}

	if bot != nil {
		bot.SetOperator(engine)
		go func() {
			if err := bot.Listen(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("❌ [Telegram] 监听退出")
			}
		}()
	}

	var server *api.Server
	if cfg.API.Enabled {
		server = api.New(api.Options{
			Addr:         cfg.API.Addr,
			JWTSecret:    cfg.API.JWTSecret,
			PasswordHash: cfg.API.PasswordHash,
			TOTPSecret:   cfg.API.TOTPSecret,
			TokenTTL:     cfg.API.TokenTTL,
		}, engine, journal, hub, m, log)
		server.Start()
	}

	engine.Start(ctx)
	<-ctx.Done()

	log.Info().Msg("🛑 收到退出信号，正在停止")
	engine.Stop()
	if server != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("⚠️  [API] 关闭超时")
		}
	}
	return nil
}

// newExchange 模拟盘用真实行情 + 本地账户，实盘直接下单
func newExchange(cfg *config.Config, log zerolog.Logger) market.Exchange {
	client := market.NewBinanceClient(cfg.BinanceOptions(), log)
	if cfg.Mode == config.ModePaper {
		log.Warn().Interface("balances", cfg.Paper.Balances).Msg("📝 模拟盘模式，不会真实下单")
		return market.NewPaperExchange(client, cfg.Paper.Balances, cfg.Paper.FeeRate)
	}
	return client
}
