package market

import (
	"testing"

	"github.com/adshao/go-binance/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatQuantityTruncates(t *testing.T) {
	qty, err := FormatQuantity(12.34567, 2)
	require.NoError(t, err)
	assert.Equal(t, "12.34", qty)

	qty, err = FormatQuantity(42.9, 0)
	require.NoError(t, err)
	assert.Equal(t, "42", qty)

	_, err = FormatQuantity(0.004, 2)
	assert.Error(t, err, "amount that truncates to zero must be rejected")

	_, err = FormatQuantity(-1, 4)
	assert.Error(t, err)
}

func TestConvertTicker(t *testing.T) {
	ticker, err := convertTicker(&binance.PriceChangeStats{
		Symbol:             "PIUSDT",
		PriceChangePercent: "-6.25",
		LastPrice:          "1.5000",
		HighPrice:          "1.7",
		LowPrice:           "1.4",
		QuoteVolume:        "123456.7",
		CloseTime:          1700000000000,
	})
	require.NoError(t, err)
	assert.Equal(t, "PIUSDT", ticker.Symbol)
	assert.Equal(t, 1.5, ticker.Last)
	assert.Equal(t, -6.25, ticker.Change24h)
	assert.Equal(t, 1.7, ticker.High)
	assert.Equal(t, 1.4, ticker.Low)
	assert.Equal(t, 123456.7, ticker.QuoteVolume)

	_, err = convertTicker(&binance.PriceChangeStats{LastPrice: "n/a"})
	assert.Error(t, err)
}

func TestConvertKline(t *testing.T) {
	kline, err := convertKline(&binance.Kline{
		OpenTime:         1,
		Open:             "1.0",
		High:             "1.2",
		Low:              "0.9",
		Close:            "1.1",
		Volume:           "1000",
		CloseTime:        2,
		QuoteAssetVolume: "1100",
	})
	require.NoError(t, err)
	assert.Equal(t, Kline{OpenTime: 1, Open: 1, High: 1.2, Low: 0.9, Close: 1.1, Volume: 1000, CloseTime: 2, QuoteVolume: 1100}, kline)

	_, err = convertKline(&binance.Kline{Open: "1", High: "1", Low: "1", Close: "bad"})
	assert.Error(t, err)
	_, err = convertKline(nil)
	assert.Error(t, err)
}

func TestConvertOrderAveragePrice(t *testing.T) {
	order := convertOrder(&binance.CreateOrderResponse{
		Symbol:                   "PIUSDT",
		OrderID:                  99,
		ClientOrderID:            "pibot-abc",
		ExecutedQuantity:         "30",
		CummulativeQuoteQuantity: "50",
		Side:                     binance.SideTypeBuy,
		Status:                   binance.OrderStatusTypeFilled,
		Fills: []*binance.Fill{
			{Price: "1.5", Quantity: "10"},
			{Price: "1.75", Quantity: "20"},
		},
	})
	assert.Equal(t, "99", order.ID)
	assert.Equal(t, 30.0, order.Filled)
	assert.Equal(t, 50.0, order.Cost)
	assert.InDelta(t, (15.0+35.0)/30.0, order.Average, 1e-12)
	assert.Equal(t, "BUY", order.Side)
	assert.Equal(t, "FILLED", order.Status)

	noFills := convertOrder(&binance.CreateOrderResponse{ExecutedQuantity: "4", CummulativeQuoteQuantity: "10"})
	assert.Equal(t, 2.5, noFills.Average)
}
