package decision

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"pibot/market"
)

const (
	// MinKlines 最少K线数量：长均线 15 根 + 1 根用于计算收益率
	MinKlines = longSMAPeriod + 1

	shortSMAPeriod = 5
	longSMAPeriod  = 15

	// BuyScoreThreshold 风险评分达到该值即产生买入信号
	BuyScoreThreshold = 4
	// AggressionProbability 随机激进加分的触发概率
	AggressionProbability = 0.2

	DefaultVolatilityThreshold = 0.02
	rsiOversold                = 30
	rsiOverbought              = 70
	dipThresholdPct            = -5
)

var (
	// ErrInsufficientKlines K线数量不足 MinKlines
	ErrInsufficientKlines = errors.New("insufficient klines for analysis")
	// ErrInvalidKline K线收盘价非正
	ErrInvalidKline = errors.New("invalid kline close price")
)

// RandSource 随机数来源，*rand.Rand 即满足
type RandSource interface {
	Float64() float64
}

// ScoreTerm 单个评分项
type ScoreTerm struct {
	Name   string `json:"name"`
	Weight int    `json:"weight"`
}

// Evaluation 单次分析结果
type Evaluation struct {
	BuySignal  bool        `json:"buy_signal"`
	RiskScore  int         `json:"risk_score"`
	RSI        float64     `json:"rsi"`
	Volatility float64     `json:"volatility"`
	ShortSMA   float64     `json:"short_sma"`
	LongSMA    float64     `json:"long_sma"`
	Change24h  float64     `json:"change_24h"`
	Terms      []ScoreTerm `json:"terms"` // 命中的评分项
}

// Indicators 评分所需的指标
type Indicators struct {
	Volatility float64
	ShortSMA   float64
	LongSMA    float64
	RSI        float64
	Gains      float64
	Losses     float64
}

// Analyzer 市场分析器：波动率 + 双均线 + RSI + 24h 跌幅 + 随机激进项
type Analyzer struct {
	volatilityThreshold float64

	mu   sync.Mutex
	rand RandSource
}

// NewAnalyzer 创建分析器，src 为 nil 时使用基于当前时间的种子
func NewAnalyzer(volatilityThreshold float64, src RandSource) *Analyzer {
	if volatilityThreshold <= 0 {
		volatilityThreshold = DefaultVolatilityThreshold
	}
	if src == nil {
		src = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Analyzer{volatilityThreshold: volatilityThreshold, rand: src}
}

// Evaluate 计算风险评分与买入信号
func (a *Analyzer) Evaluate(klines []market.Kline, change24h float64) (*Evaluation, error) {
	ind, err := ComputeIndicators(klines)
	if err != nil {
		return nil, err
	}

	// 随机项每次调用必须且只能抽样一次
	a.mu.Lock()
	draw := a.rand.Float64()
	a.mu.Unlock()

	terms := ScoreTerms(ind, change24h, a.volatilityThreshold, draw)
	score := SumTerms(terms)

	return &Evaluation{
		BuySignal:  score >= BuyScoreThreshold,
		RiskScore:  score,
		RSI:        ind.RSI,
		Volatility: ind.Volatility,
		ShortSMA:   ind.ShortSMA,
		LongSMA:    ind.LongSMA,
		Change24h:  change24h,
		Terms:      terms,
	}, nil
}

// ComputeIndicators 从K线窗口计算指标
func ComputeIndicators(klines []market.Kline) (Indicators, error) {
	var ind Indicators
	if len(klines) < MinKlines {
		return ind, fmt.Errorf("%w: got %d, need %d", ErrInsufficientKlines, len(klines), MinKlines)
	}

	closes := market.Closes(klines)
	for i, c := range closes {
		if c <= 0 || math.IsNaN(c) || math.IsInf(c, 0) {
			return ind, fmt.Errorf("%w: bar %d close=%v", ErrInvalidKline, i, c)
		}
	}

	returns := market.Returns(closes)
	absSum := 0.0
	for _, r := range returns {
		absSum += math.Abs(r)
		if r > 0 {
			ind.Gains += r
		} else if r < 0 {
			ind.Losses += -r
		}
	}
	ind.Volatility = absSum / float64(len(returns))
	ind.ShortSMA, _ = market.MeanLast(closes, shortSMAPeriod)
	ind.LongSMA, _ = market.MeanLast(closes, longSMAPeriod)
	ind.RSI = RSI(ind.Gains, ind.Losses)
	return ind, nil
}

// RSI 根据累计涨幅与跌幅计算 RSI，无下跌时为 100
func RSI(gains, losses float64) float64 {
	if losses == 0 {
		return 100
	}
	rs := gains / losses
	return 100 - 100/(1+rs)
}

// ScoreTerms 逐项独立判定，draw 为 [0,1) 的随机抽样值
func ScoreTerms(ind Indicators, change24h, volatilityThreshold, draw float64) []ScoreTerm {
	var terms []ScoreTerm
	if ind.ShortSMA > ind.LongSMA {
		terms = append(terms, ScoreTerm{Name: "trend_up", Weight: 3})
	}
	if ind.Volatility > volatilityThreshold {
		terms = append(terms, ScoreTerm{Name: "high_volatility", Weight: 2})
	}
	if ind.RSI < rsiOversold {
		terms = append(terms, ScoreTerm{Name: "rsi_oversold", Weight: 3})
	} else if ind.RSI > rsiOverbought {
		terms = append(terms, ScoreTerm{Name: "rsi_overbought", Weight: -3})
	}
	if change24h < dipThresholdPct {
		terms = append(terms, ScoreTerm{Name: "dip_24h", Weight: 2})
	}
	if draw < AggressionProbability {
		terms = append(terms, ScoreTerm{Name: "aggression", Weight: 4})
	}
	return terms
}

// SumTerms 评分求和
func SumTerms(terms []ScoreTerm) int {
	score := 0
	for _, t := range terms {
		score += t.Weight
	}
	return score
}
