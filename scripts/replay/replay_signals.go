package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"time"

	"pibot/decision"
	"pibot/market"
	"pibot/trader"

	"github.com/rs/zerolog"
	"github.com/sirupsen/logrus"
)

const defaultOutputName = "replay_report.txt"

var location = time.FixedZone("UTC+8", 8*3600)

// simTrade 回放中的一笔完整交易
type simTrade struct {
	EntryTime  int64
	ExitTime   int64
	EntryPrice float64
	ExitPrice  float64
	Reason     decision.ExitReason
	Score      int
}

// replayResult 回放统计
type replayResult struct {
	Bars     int
	Signals  int
	Trades   []simTrade
	Open     *simTrade // 回放结束时仍未平仓
	TotalPct float64
	Wins     int
}

func main() {
	symbol := flag.String("symbol", "PI/USDT", "交易对（例如 PI/USDT）")
	interval := flag.String("interval", trader.DefaultKlineInterval, "K线周期")
	limit := flag.Int("limit", 500, "拉取K线数量")
	window := flag.Int("window", trader.DefaultKlineLimit, "每次分析使用的K线窗口")
	seed := flag.Int64("seed", 1, "随机项种子")
	profit := flag.Float64("profit", trader.DefaultParams().ProfitThreshold, "止盈阈值")
	stop := flag.Float64("stop", trader.DefaultParams().StopLossThreshold, "止损阈值")
	outPath := flag.String("out", defaultOutputName, "输出 txt 文件路径")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	pair, err := market.ParsePair(*symbol)
	exitOnErr(log, "交易对不合法", err)
	if *window < decision.MinKlines {
		log.Fatalf("窗口至少需要 %d 根K线", decision.MinKlines)
	}

	client := market.NewBinanceClient(market.BinanceOptions{}, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	klines, err := client.FetchOHLCV(ctx, pair, *interval, *limit)
	exitOnErr(log, "获取K线失败", err)
	log.WithFields(logrus.Fields{"symbol": pair.String(), "interval": *interval, "bars": len(klines)}).Info("📥 K线已获取")

	analyzer := decision.NewAnalyzer(decision.DefaultVolatilityThreshold, rand.New(rand.NewSource(*seed)))
	result := replay(klines, analyzer, *window, *profit, *stop)

	report := buildReport(pair.String(), *interval, *window, result)
	if err := os.WriteFile(*outPath, []byte(report), 0o644); err != nil {
		log.Fatalf("写入文件失败: %v", err)
	}
	log.WithFields(logrus.Fields{
		"signals": result.Signals,
		"trades":  len(result.Trades),
		"pnl_pct": fmt.Sprintf("%.2f%%", result.TotalPct*100),
	}).Infof("✅ 回放报告已写入 %s", *outPath)
}

func exitOnErr(log *logrus.Logger, msg string, err error) {
	if err != nil {
		log.Fatalf("%s: %v", msg, err)
	}
}

// replay 逐根K线滑动窗口。24h 涨跌用窗口首尾收盘价近似
func replay(klines []market.Kline, analyzer *decision.Analyzer, window int, profit, stop float64) replayResult {
	res := replayResult{}
	var open *simTrade

	for i := window; i <= len(klines); i++ {
		slice := klines[i-window : i]
		last := slice[len(slice)-1]
		res.Bars++

		if open != nil {
			reason, pct := decision.CheckExit(open.EntryPrice, last.Close, profit, stop)
			if reason == decision.ExitNone {
				continue
			}
			open.ExitTime = last.OpenTime
			open.ExitPrice = last.Close
			open.Reason = reason
			res.Trades = append(res.Trades, *open)
			res.TotalPct += pct
			if pct > 0 {
				res.Wins++
			}
			open = nil
			continue
		}

		eval, err := analyzer.Evaluate(slice, windowChange(slice))
		if err != nil || !eval.BuySignal {
			continue
		}
		res.Signals++
		open = &simTrade{EntryTime: last.OpenTime, EntryPrice: last.Close, Score: eval.RiskScore}
	}

	res.Open = open
	return res
}

func windowChange(klines []market.Kline) float64 {
	if len(klines) == 0 || klines[0].Close <= 0 {
		return 0
	}
	return (klines[len(klines)-1].Close - klines[0].Close) / klines[0].Close * 100
}

func buildReport(symbol, interval string, window int, res replayResult) string {
	var sb strings.Builder
	now := time.Now().In(location)

	sb.WriteString(fmt.Sprintf("Symbol: %s\n周期: %s  窗口: %d\n生成时间(UTC+8): %s\n\n",
		symbol, interval, window, now.Format("2006-01-02 15:04:05")))

	sb.WriteString("=== 汇总 ===\n")
	sb.WriteString(fmt.Sprintf("分析次数: %d\n买入信号: %d\n完成交易: %d\n", res.Bars, res.Signals, len(res.Trades)))
	if n := len(res.Trades); n > 0 {
		sb.WriteString(fmt.Sprintf("胜率: %.1f%%\n累计收益率: %.2f%%\n", float64(res.Wins)/float64(n)*100, res.TotalPct*100))
	}
	sb.WriteString("\n=== 交易明细 ===\n")
	sb.WriteString(formatTrades(res.Trades))
	if res.Open != nil {
		sb.WriteString(fmt.Sprintf("\n未平仓: %s 入场 %s (评分 %d)\n",
			formatTime(res.Open.EntryTime), market.FormatPrice(res.Open.EntryPrice), res.Open.Score))
	}
	return sb.String()
}

func formatTrades(trades []simTrade) string {
	var sb strings.Builder
	for idx, t := range trades {
		sb.WriteString(fmt.Sprintf(
			"[%02d] %s → %s | 入场: %s 出场: %s | %s %+.2f%% | 评分 %d\n",
			idx+1,
			formatTime(t.EntryTime),
			formatTime(t.ExitTime),
			market.FormatPrice(t.EntryPrice),
			market.FormatPrice(t.ExitPrice),
			t.Reason,
			decision.ProfitPct(t.EntryPrice, t.ExitPrice)*100,
			t.Score,
		))
	}
	return sb.String()
}

func formatTime(ms int64) string {
	return time.UnixMilli(ms).In(location).Format("2006-01-02 15:04")
}
