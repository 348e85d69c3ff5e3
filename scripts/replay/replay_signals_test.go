package main

import (
	"strings"
	"testing"

	"pibot/decision"
	"pibot/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedDraw float64

func (f fixedDraw) Float64() float64 { return float64(f) }

// crashThen 16 根连续下跌的K线，之后按 moves 依次乘以系数
func crashThen(moves ...float64) []market.Kline {
	var klines []market.Kline
	price := 10.0
	for i := 0; i < decision.MinKlines; i++ {
		klines = append(klines, market.Kline{OpenTime: int64(i) * 300_000, Close: price})
		price *= 0.97
	}
	price = klines[len(klines)-1].Close
	for i, m := range moves {
		price *= m
		klines = append(klines, market.Kline{OpenTime: int64(decision.MinKlines+i) * 300_000, Close: price})
	}
	return klines
}

func TestReplayTakeProfit(t *testing.T) {
	klines := crashThen(1.05)
	res := replay(klines, decision.NewAnalyzer(0.02, fixedDraw(0.99)), decision.MinKlines, 0.03, 0.05)

	assert.Equal(t, 2, res.Bars)
	assert.Equal(t, 1, res.Signals)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, decision.ExitProfit, res.Trades[0].Reason)
	assert.Equal(t, 7, res.Trades[0].Score)
	assert.Equal(t, 1, res.Wins)
	assert.InDelta(t, 0.05, res.TotalPct, 1e-9)
	assert.Nil(t, res.Open)
}

func TestReplayStopLoss(t *testing.T) {
	klines := crashThen(0.9)
	res := replay(klines, decision.NewAnalyzer(0.02, fixedDraw(0.99)), decision.MinKlines, 0.03, 0.05)

	require.Len(t, res.Trades, 1)
	assert.Equal(t, decision.ExitStopLoss, res.Trades[0].Reason)
	assert.Equal(t, 0, res.Wins)
	assert.InDelta(t, -0.1, res.TotalPct, 1e-9)
}

func TestReplayLeavesOpenPosition(t *testing.T) {
	klines := crashThen(1.0)
	res := replay(klines, decision.NewAnalyzer(0.02, fixedDraw(0.99)), decision.MinKlines, 0.03, 0.05)

	assert.Empty(t, res.Trades)
	require.NotNil(t, res.Open)
	assert.Equal(t, klines[decision.MinKlines-1].Close, res.Open.EntryPrice)

	report := buildReport("PI/USDT", "5m", decision.MinKlines, res)
	assert.Contains(t, report, "未平仓")
	assert.Contains(t, report, "买入信号: 1")
}

func TestReplayShortSeries(t *testing.T) {
	res := replay(crashThen()[:5], decision.NewAnalyzer(0.02, fixedDraw(0.99)), decision.MinKlines, 0.03, 0.05)
	assert.Zero(t, res.Bars)
	assert.Nil(t, res.Open)
}

func TestWindowChange(t *testing.T) {
	klines := []market.Kline{{Close: 2}, {Close: 1.5}, {Close: 1.8}}
	assert.InDelta(t, -10, windowChange(klines), 1e-9)
	assert.Zero(t, windowChange(nil))
}

func TestFormatTrades(t *testing.T) {
	out := formatTrades([]simTrade{{EntryPrice: 2, ExitPrice: 2.5, Reason: decision.ExitProfit, Score: 5}})
	assert.True(t, strings.HasPrefix(out, "[01]"))
	assert.Contains(t, out, "+25.00%")
	assert.Contains(t, out, "profit")
}
