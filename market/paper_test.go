package market

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticData struct {
	ticker *Ticker
	klines []Kline
	err    error
}

func (s *staticData) FetchTicker(ctx context.Context, pair Pair) (*Ticker, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.ticker, nil
}

func (s *staticData) FetchOHLCV(ctx context.Context, pair Pair, interval string, limit int) ([]Kline, error) {
	if s.err != nil {
		return nil, s.err
	}
	return TakeLast(s.klines, limit), nil
}

var piUSDT = Pair{Base: "PI", Quote: "USDT"}

func TestPaperExchangeRoundTrip(t *testing.T) {
	data := &staticData{ticker: &Ticker{Last: 2}}
	ex := NewPaperExchange(data, map[string]float64{"usdt": 100}, 0.001)
	ctx := context.Background()

	buy, err := ex.CreateMarketBuyOrder(ctx, piUSDT, 10)
	require.NoError(t, err)
	assert.Equal(t, SideBuy, buy.Side)
	assert.InDelta(t, 9.99, buy.Filled, 1e-9)
	assert.InDelta(t, 20, buy.Cost, 1e-9)
	assert.Equal(t, 2.0, buy.Average)

	bal, err := ex.FetchBalance(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 80, bal["USDT"], 1e-9)
	assert.InDelta(t, 9.99, bal["PI"], 1e-9)

	data.ticker = &Ticker{Last: 3}
	sell, err := ex.CreateMarketSellOrder(ctx, piUSDT, 9.99)
	require.NoError(t, err)
	assert.InDelta(t, 9.99*3*0.999, sell.Cost, 1e-9)

	bal, _ = ex.FetchBalance(ctx)
	assert.InDelta(t, 0, bal["PI"], 1e-9)
	assert.InDelta(t, 80+9.99*3*0.999, bal["USDT"], 1e-9)
}

func TestPaperExchangeInsufficientFunds(t *testing.T) {
	data := &staticData{ticker: &Ticker{Last: 5}}
	ex := NewPaperExchange(data, map[string]float64{"USDT": 10}, 0)
	ctx := context.Background()

	_, err := ex.CreateMarketBuyOrder(ctx, piUSDT, 3)
	assert.True(t, errors.Is(err, ErrPaperInsufficientFunds))

	_, err = ex.CreateMarketSellOrder(ctx, piUSDT, 1)
	assert.True(t, errors.Is(err, ErrPaperInsufficientFunds))

	bal, _ := ex.FetchBalance(ctx)
	assert.Equal(t, 10.0, bal["USDT"], "balances must be untouched after a rejected order")
}

func TestPaperExchangeDataFailure(t *testing.T) {
	data := &staticData{err: errors.New("timeout")}
	ex := NewPaperExchange(data, map[string]float64{"USDT": 100}, 0)

	_, err := ex.CreateMarketBuyOrder(context.Background(), piUSDT, 1)
	require.Error(t, err)
	_, err = ex.FetchTicker(context.Background(), piUSDT)
	require.Error(t, err)
}

func TestPaperExchangeBalanceIsCopy(t *testing.T) {
	ex := NewPaperExchange(&staticData{ticker: &Ticker{Last: 1}}, map[string]float64{"USDT": 50}, 0)
	bal, _ := ex.FetchBalance(context.Background())
	bal["USDT"] = 0

	again, _ := ex.FetchBalance(context.Background())
	assert.Equal(t, 50.0, again["USDT"])
}
