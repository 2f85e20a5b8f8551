package broadcast

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"tgbroadcast/internal/transport"
	logx "tgbroadcast/pkg/logx"
)

// Dispatcher sends one batch concurrently and reports an Outcome per recipient.
// It never returns an error: every failure ends up in an Outcome.
type Dispatcher struct {
	limiter     *rate.Limiter
	sendTimeout time.Duration
	opts        transport.SendOptions
	log         logx.Logger
}

// NewDispatcher builds a dispatcher for a single run. The optional limiter
// (cfg.RatePerSec > 0) is owned by the dispatcher, so its budget is per run.
func NewDispatcher(cfg Config, mode ParseMode, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	d := &Dispatcher{
		sendTimeout: cfg.SendTimeout,
		opts:        transport.SendOptions{ParseMode: mode.BotAPI(), DisablePreview: cfg.DisablePreview},
		log:         log,
	}
	if cfg.RatePerSec > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	}
	return d
}

// Dispatch returns once every send of batch has settled. out[i] belongs to batch[i].
func (d *Dispatcher) Dispatch(ctx context.Context, s transport.Session, batch []int64, msg ComposedMessage) []Outcome {
	out := make([]Outcome, len(batch))
	var wg sync.WaitGroup
	wg.Add(len(batch))
	for i, id := range batch {
		go func() {
			defer wg.Done()
			out[i] = d.sendOne(ctx, s, id, msg)
		}()
	}
	wg.Wait()
	return out
}

func (d *Dispatcher) sendOne(ctx context.Context, s transport.Session, id int64, msg ComposedMessage) (o Outcome) {
	o.Recipient = id
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("panic in broadcast send", logx.Int64("chat_id", id), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			o = Outcome{Recipient: id, Reason: fmt.Sprintf("send panicked: %v", r)}
		}
	}()

	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			o.Reason = failureReason(err)
			return o
		}
	}

	sctx := ctx
	if d.sendTimeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, d.sendTimeout)
		defer cancel()
	}

	opts := d.opts
	err := s.SendText(sctx, id, msg.Text(), &opts)
	if err == nil {
		o.Sent = true
		return o
	}
	o.Reason = failureReason(err)
	d.log.Debug("broadcast send failed", logx.Int64("chat_id", id), logx.String("reason", o.Reason))
	return o
}

func failureReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return "send timed out"
	case errors.Is(err, context.Canceled):
		return "broadcast canceled"
	}
	if r := strings.TrimSpace(transport.Describe(err)); r != "" {
		return r
	}
	return "message delivery failed"
}
