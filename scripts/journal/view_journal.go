package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"pibot/market"
	"pibot/store"
	"pibot/trader"

	"github.com/rs/zerolog"
	"github.com/sirupsen/logrus"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

type palette struct {
	reset, red, green, yellow, cyan, bold string
}

var (
	ansi  = palette{colorReset, colorRed, colorGreen, colorYellow, colorCyan, colorBold}
	plain = palette{}
)

func main() {
	dbPath := flag.String("db", "pibot.db", "成交流水数据库路径")
	limit := flag.Int("limit", 20, "显示最近多少条")
	outPath := flag.String("out", "", "同时输出纯文本报告到文件")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if _, err := os.Stat(*dbPath); err != nil {
		log.Fatalf("数据库不存在: %v", err)
	}
	journal, err := store.Open(*dbPath, zerolog.Nop())
	if err != nil {
		log.Fatalf("打开数据库失败: %v", err)
	}
	defer journal.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	entries, err := journal.Recent(ctx, *limit)
	if err != nil {
		log.Fatalf("读取成交流水失败: %v", err)
	}
	summary, err := journal.Summarize(ctx)
	if err != nil {
		log.Fatalf("汇总失败: %v", err)
	}

	printReport(os.Stdout, ansi, entries, summary)

	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			log.Fatalf("创建文件失败: %v", err)
		}
		defer f.Close()
		printReport(f, plain, entries, summary)
		log.WithField("path", *outPath).Info("📄 已保存报告")
	}
}

func printReport(w io.Writer, c palette, entries []trader.JournalEntry, s store.Summary) {
	fmt.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintf(w, "%s📒 成交流水%s\n", c.bold, c.reset)
	fmt.Fprintln(w, strings.Repeat("=", 80))

	fmt.Fprintf(w, "\n▶ 汇总\n\n")
	fmt.Fprintf(w, "  平仓次数: %s%d%s\n", c.yellow, s.Trades, c.reset)
	fmt.Fprintf(w, "  盈利/亏损: %s%d%s / %s%d%s\n", c.green, s.Wins, c.reset, c.red, s.Losses, c.reset)
	fmt.Fprintf(w, "  累计盈亏: %s\n", colorPnL(c, s.TotalPnL, "%+.4f"))

	fmt.Fprintf(w, "\n▶ 最近 %d 条\n\n", len(entries))
	if len(entries) == 0 {
		fmt.Fprintln(w, "  (无记录)")
		return
	}
	for i, e := range entries {
		fmt.Fprintf(w, "  %s[%d]%s %s\n", c.bold, i+1, c.reset, formatEntry(c, e))
	}
}

func formatEntry(c palette, e trader.JournalEntry) string {
	trigger := "auto"
	if e.Manual {
		trigger = "manual"
	}
	at := e.At.In(time.FixedZone("UTC+8", 8*3600)).Format("2006-01-02 15:04:05")

	switch e.Side {
	case "buy":
		return fmt.Sprintf("%s %s📈 BUY%s  %s @ %s%s%s (%.4f %s) [%s]",
			at, c.green, c.reset, trimAmount(e.Amount), c.cyan, market.FormatPrice(e.Price), c.reset, e.Quote, e.Pair, trigger)
	default:
		return fmt.Sprintf("%s %s📉 SELL%s %s @ %s%s%s 入场 %s 盈亏 %s (%s) [%s]",
			at, c.yellow, c.reset, trimAmount(e.Amount), c.cyan, market.FormatPrice(e.Price), c.reset,
			market.FormatPrice(e.EntryPrice), colorPnL(c, e.PnL, "%+.4f"), e.Reason, trigger)
	}
}

func colorPnL(c palette, v float64, format string) string {
	color := c.green
	if v < 0 {
		color = c.red
	}
	return color + fmt.Sprintf(format, v) + c.reset
}

func trimAmount(v float64) string {
	s := fmt.Sprintf("%.6f", v)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
