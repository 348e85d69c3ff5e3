package market

import (
	"fmt"
	"strings"
)

// knownQuotes 连写交易对（如 PIUSDT）拆分时识别的计价币
var knownQuotes = []string{"USDT", "USDC", "FDUSD", "BUSD", "BTC", "ETH"}

// ParsePair 解析交易对，支持 "PI/USDT"、"PI-USDT"、"PIUSDT" 三种写法
func ParsePair(raw string) (Pair, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return Pair{}, fmt.Errorf("交易对为空")
	}

	for _, sep := range []string{"/", "-", "_"} {
		if parts := strings.Split(s, sep); len(parts) == 2 {
			if parts[0] == "" || parts[1] == "" {
				return Pair{}, fmt.Errorf("交易对格式错误: %q", raw)
			}
			return Pair{Base: parts[0], Quote: parts[1]}, nil
		}
	}

	for _, quote := range knownQuotes {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return Pair{Base: strings.TrimSuffix(s, quote), Quote: quote}, nil
		}
	}
	return Pair{}, fmt.Errorf("无法识别计价币: %q", raw)
}

// Closes 提取收盘价序列
func Closes(klines []Kline) []float64 {
	closes := make([]float64, len(klines))
	for i, k := range klines {
		closes[i] = k.Close
	}
	return closes
}

// Returns 计算逐根收益率 close[i]/close[i-1]-1（长度为 len(closes)-1）
func Returns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	res := make([]float64, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		res[i-1] = closes[i]/closes[i-1] - 1
	}
	return res
}

// MeanLast 计算最后 n 个值的均值，数据不足 n 个时返回 false
func MeanLast(values []float64, n int) (float64, bool) {
	if n <= 0 || len(values) < n {
		return 0, false
	}
	sum := 0.0
	for _, v := range values[len(values)-n:] {
		sum += v
	}
	return sum / float64(n), true
}

// TakeLast 取最近 n 根K线
func TakeLast(klines []Kline, n int) []Kline {
	if n <= 0 || len(klines) <= n {
		return klines
	}
	return klines[len(klines)-n:]
}

// FormatPrice 根据价格区间动态选择精度
// 从超低价 meme coin (< 0.0001) 到 BTC/ETH 都能保持可读
func FormatPrice(price float64) string {
	switch {
	case price == 0:
		return "0"
	case price < 0.0001:
		return fmt.Sprintf("%.8f", price)
	case price < 0.01:
		return fmt.Sprintf("%.6f", price)
	case price < 100:
		return fmt.Sprintf("%.4f", price)
	default:
		return fmt.Sprintf("%.2f", price)
	}
}
