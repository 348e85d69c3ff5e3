package notify

import (
	"context"
	"errors"

	"pibot/trader"

	"github.com/rs/zerolog"
)

// Multi 扇出到多个通知渠道，单个渠道失败不影响其他渠道
type Multi []trader.Notifier

func (m Multi) Notify(ctx context.Context, ev trader.Event) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogNotifier 把事件写入日志，未配置任何外部渠道时使用
type LogNotifier struct {
	Log zerolog.Logger
}

func (l LogNotifier) Notify(_ context.Context, ev trader.Event) error {
	l.Log.Info().Str("kind", string(ev.Kind)).Msg(FormatEvent(ev))
	return nil
}
