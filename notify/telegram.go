package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"pibot/trader"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

const helpText = `Available commands, sir:
/status - price, balance and open position
/buy - manual entry (ignores signal and cooldown)
/sell - manual exit
/set_params [order_size] [profit] [stop_loss] - e.g. /set_params 0.85 0.03 0.05
/trades - recent trades from the journal
/help - this message`

const setParamsUsage = "Incorrect parameters. Format: /set_params [order_size] [profit] [stop_loss]\n" +
	"Example: /set_params 0.85 0.03 0.05"

// sender 发送消息的最小接口，*tgbotapi.BotAPI 即满足
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// longPollSeconds getUpdates 长轮询时长
const longPollSeconds = 30

// DefaultTelegramTimeout HTTP 超时，必须长于长轮询时长
const DefaultTelegramTimeout = (longPollSeconds + 15) * time.Second

// TelegramOptions 连接参数
type TelegramOptions struct {
	Token   string
	ChatID  int64
	Pair    string
	Timeout time.Duration // 为 0 时使用 DefaultTelegramTimeout
}

// TelegramBot 通知渠道 + 手动命令传输，只响应配置的 chat
type TelegramBot struct {
	api      *tgbotapi.BotAPI
	sender   sender
	chatID   int64
	pair     string
	operator trader.Operator
	history  trader.History
	log      zerolog.Logger
}

// NewTelegramBot 连接 Telegram（会调用 getMe 校验 token）
func NewTelegramBot(opts TelegramOptions, op trader.Operator, history trader.History, log zerolog.Logger) (*TelegramBot, error) {
	timeout := opts.Timeout
	if timeout <= longPollSeconds*time.Second {
		timeout = DefaultTelegramTimeout
	}
	api, err := tgbotapi.NewBotAPIWithClient(opts.Token, tgbotapi.APIEndpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	b := newTelegramBot(api, opts, op, history, log)
	b.api = api
	b.log.Info().Str("bot", api.Self.UserName).Int64("chat_id", opts.ChatID).Msg("🤖 [Telegram] 已连接")
	return b, nil
}

func newTelegramBot(s sender, opts TelegramOptions, op trader.Operator, history trader.History, log zerolog.Logger) *TelegramBot {
	return &TelegramBot{
		sender:   s,
		chatID:   opts.ChatID,
		pair:     opts.Pair,
		operator: op,
		history:  history,
		log:      log.With().Str("component", "telegram").Logger(),
	}
}

// SetOperator 绑定命令处理方（引擎创建晚于通知渠道时使用）
func (b *TelegramBot) SetOperator(op trader.Operator) { b.operator = op }

// Notify 实现 trader.Notifier，ctx 已结束时不再发送
func (b *TelegramBot) Notify(ctx context.Context, ev trader.Event) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return b.send(FormatEvent(ev))
}

func (b *TelegramBot) send(text string) error {
	if _, err := b.sender.Send(tgbotapi.NewMessage(b.chatID, text)); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

func (b *TelegramBot) reply(text string) {
	if err := b.send(text); err != nil {
		b.log.Warn().Err(err).Msg("⚠️  [Telegram] 回复失败")
	}
}

// Listen 长轮询接收命令，直到 ctx 取消
func (b *TelegramBot) Listen(ctx context.Context) error {
	if b.api == nil {
		return errors.New("telegram: bot not connected")
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = longPollSeconds
	updates := b.api.GetUpdatesChan(u)
	b.log.Info().Msg("👂 [Telegram] 开始监听命令")

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			if upd.Message != nil {
				b.HandleMessage(ctx, upd.Message)
			}
		}
	}
}

// HandleMessage 处理单条消息，其他 chat 的消息直接忽略
func (b *TelegramBot) HandleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg == nil || msg.Chat == nil || msg.Chat.ID != b.chatID {
		if msg != nil && msg.Chat != nil {
			b.log.Warn().Int64("chat_id", msg.Chat.ID).Msg("🚫 [Telegram] 忽略未授权 chat 的消息")
		}
		return
	}
	if !msg.IsCommand() {
		return
	}
	cmd := msg.Command()
	b.log.Info().Str("command", cmd).Msg("📩 [Telegram] 收到命令")
	b.dispatch(ctx, cmd, msg.CommandArguments())
}

func (b *TelegramBot) dispatch(ctx context.Context, cmd, args string) {
	if b.operator == nil {
		b.reply("Trading engine not ready yet, sir.")
		return
	}

	switch cmd {
	case "start":
		b.reply(fmt.Sprintf("Trading protocol activated, sir. Monitoring %s for aggressive trading opportunities.", b.pair))
	case "help":
		b.reply(helpText)

	case "status":
		report, err := b.operator.Status(ctx)
		if err != nil {
			b.reply(FormatError(err))
			return
		}
		b.reply(FormatStatus(report))

	case "buy":
		if b.operator.Position().State == trader.StateLong {
			b.reply("Already in position, sir. Perhaps selling first would be prudent?")
			return
		}
		b.reply("Manual override accepted. Executing buy order, sir.")
		// 成交通知由引擎发出
		if _, err := b.operator.ManualBuy(ctx); err != nil {
			b.reply(FormatError(err))
		}

	case "sell":
		if b.operator.Position().State != trader.StateLong {
			b.reply("No position to sell, sir. Perhaps we should acquire some first?")
			return
		}
		b.reply("Manual sell protocol initiated. Liquidating position, sir.")
		if _, err := b.operator.ManualSell(ctx); err != nil {
			b.reply(FormatError(err))
		}

	case "set_params":
		fields := strings.Fields(args)
		if len(fields) != 3 {
			b.reply(setParamsUsage)
			return
		}
		p, err := b.operator.SetParams(fields[0], fields[1], fields[2])
		if err != nil {
			b.reply(FormatError(err))
			return
		}
		b.reply(FormatParams(p))

	case "trades":
		if b.history == nil {
			b.reply("Trade journal is disabled, sir.")
			return
		}
		entries, err := b.history.Recent(ctx, 10)
		if err != nil {
			b.reply(FormatError(err))
			return
		}
		b.reply(FormatTrades(entries))

	default:
		b.reply("Unknown command, sir. Try /help.")
	}
}
