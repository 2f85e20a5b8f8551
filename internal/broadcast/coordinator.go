package broadcast

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"tgbroadcast/internal/eventbus"
	"tgbroadcast/internal/transport"
	logx "tgbroadcast/pkg/logx"
)

// RunEvent is published on the event bus when a run finishes or fails.
type RunEvent struct {
	RunID         string
	Origin        string
	Bot           string
	BotID         int64
	ParseMode     string
	Total         int
	Successful    int
	Failed        int
	MessageLength int
	Batches       int
	Duration      time.Duration
	StartedAt     time.Time
	Warning       string
	Error         string
}

// Coordinator runs broadcasts end to end: verify the token, collect the
// audience, then deliver in paced batches. Runs are independent; the
// coordinator keeps no state between them besides its configuration.
type Coordinator struct {
	mu       sync.RWMutex
	cfg      Config
	provider transport.Provider

	log      logx.Logger
	bus      eventbus.Bus
	clock    Clock
	newRunID func() string
}

type Option func(*Coordinator)

func WithClock(c Clock) Option { return func(co *Coordinator) { co.clock = c } }

func WithEventBus(b eventbus.Bus) Option { return func(co *Coordinator) { co.bus = b } }

func WithRunIDs(fn func() string) Option { return func(co *Coordinator) { co.newRunID = fn } }

func NewCoordinator(cfg Config, p transport.Provider, log logx.Logger, opts ...Option) *Coordinator {
	if log.IsZero() {
		log = logx.Nop()
	}
	c := &Coordinator{
		cfg:      cfg.withDefaults(),
		provider: p,
		log:      log,
		clock:    SystemClock,
		newRunID: uuid.NewString,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Apply swaps the configuration used by subsequent runs. In-flight runs keep
// the snapshot they started with.
func (c *Coordinator) Apply(cfg Config) {
	c.mu.Lock()
	c.cfg = cfg.withDefaults()
	c.mu.Unlock()
}

func (c *Coordinator) Config() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// SetProvider swaps the provider used by subsequent runs.
func (c *Coordinator) SetProvider(p transport.Provider) {
	c.mu.Lock()
	c.provider = p
	c.mu.Unlock()
}

// Run performs one broadcast. The returned error wraps ErrInvalidInput,
// ErrUnauthorized or ErrProcessing; per-recipient failures are reported in
// the Report and never turn into an error.
func (c *Coordinator) Run(ctx context.Context, req Request) (Report, error) {
	c.mu.RLock()
	cfg, provider := c.cfg, c.provider
	c.mu.RUnlock()

	token := strings.TrimSpace(req.Token)
	if token == "" || strings.TrimSpace(req.Message) == "" {
		return Report{}, fmt.Errorf("%w: missing required parameters: token or message", ErrInvalidInput)
	}
	msg := Compose(req.Message, req.ParseMode, cfg.Branding)
	if n := msg.Len(); n > cfg.MaxMessageLength {
		return Report{}, fmt.Errorf("%w: message is %d characters with footer, limit is %d", ErrInvalidInput, n, cfg.MaxMessageLength)
	}
	if provider == nil {
		return Report{}, fmt.Errorf("%w: no messaging provider configured", ErrProcessing)
	}

	rep := Report{
		RunID:     c.newRunID(),
		ParseMode: req.ParseMode.String(),
		BatchSize: cfg.BatchSize,
		StartedAt: c.clock.Now(),
	}
	origin := req.Origin
	if origin == "" {
		origin = "api"
	}
	log := c.log.With(logx.String("run_id", rep.RunID), logx.String("origin", origin))
	c.publish(eventbus.TopicRunStarted, rep, origin, nil)

	sess, err := provider.Open(ctx, token)
	if err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %w", ErrProcessing, ctx.Err())
		} else {
			err = fmt.Errorf("%w: %w", ErrUnauthorized, err)
		}
		log.Warn("broadcast rejected", logx.String("provider", provider.Name()), logx.Err(err))
		c.publish(eventbus.TopicRunFailed, rep, origin, err)
		return Report{}, err
	}
	bot := sess.Bot()
	rep.Bot, rep.BotID = bot.Username, bot.ID
	log = log.With(logx.String("bot", bot.Username))

	if err := sess.ClearWebhook(ctx, cfg.DropPendingUpdates); err != nil {
		return c.fail(log, rep, origin, fmt.Errorf("%w: delete webhook: %w", ErrProcessing, err))
	}
	updates, err := sess.RecentUpdates(ctx, cfg.FeedLimit, cfg.FeedOffset)
	if err != nil {
		return c.fail(log, rep, origin, fmt.Errorf("%w: get updates: %w", ErrProcessing, err))
	}

	recipients := ResolveRecipients(updates)
	if len(recipients) == 0 {
		rep.Warning = NoRecipientsWarning
		log.Info("broadcast has no recipients", logx.Int("updates", len(updates)))
		c.publish(eventbus.TopicRunFinished, rep, origin, nil)
		return rep, nil
	}
	rep.TotalUsers = len(recipients)
	rep.MessageLength = msg.Len()

	log.Info("broadcast started",
		logx.Int("recipients", len(recipients)),
		logx.String("parse_mode", rep.ParseMode),
		logx.Int("batch_size", cfg.BatchSize),
	)

	disp := NewDispatcher(cfg, req.ParseMode, log)
	start := c.clock.Now()
	outcomes := make([]Outcome, 0, len(recipients))
	for i, batch := range Schedule(ctx, recipients, cfg.BatchSize, cfg.BatchDelay, c.clock) {
		res := disp.Dispatch(ctx, sess, batch, msg)
		outcomes = append(outcomes, res...)
		rep.Batches++
		log.Debug("batch dispatched", logx.Int("batch", i+1), logx.Int("size", len(batch)), logx.Int("failed", countFailed(res)))
	}
	if len(outcomes) < len(recipients) {
		reason := failureReason(ctx.Err())
		if reason == "" {
			reason = "broadcast aborted"
		}
		for _, id := range recipients[len(outcomes):] {
			outcomes = append(outcomes, Outcome{Recipient: id, Reason: reason})
		}
	}
	rep.DurationSeconds = roundSeconds(c.clock.Now().Sub(start))
	aggregate(&rep, outcomes, cfg.MaxFailuresReported)

	fields := []logx.Field{
		logx.Int("total", rep.TotalUsers),
		logx.Int("successful", rep.Successful),
		logx.Int("failed", rep.Failed),
		logx.Float64("duration_s", rep.DurationSeconds),
	}
	if rep.Failed > 0 {
		log.Warn("broadcast finished with failures", fields...)
	} else {
		log.Info("broadcast finished", fields...)
	}
	c.publish(eventbus.TopicRunFinished, rep, origin, nil)
	return rep, nil
}

func (c *Coordinator) fail(log logx.Logger, rep Report, origin string, err error) (Report, error) {
	log.Error("broadcast failed", logx.Err(err))
	c.publish(eventbus.TopicRunFailed, rep, origin, err)
	return Report{}, err
}

func (c *Coordinator) publish(topic string, rep Report, origin string, err error) {
	if c.bus == nil {
		return
	}
	ev := RunEvent{
		RunID:         rep.RunID,
		Origin:        origin,
		Bot:           rep.Bot,
		BotID:         rep.BotID,
		ParseMode:     rep.ParseMode,
		Total:         rep.TotalUsers,
		Successful:    rep.Successful,
		Failed:        rep.Failed,
		MessageLength: rep.MessageLength,
		Batches:       rep.Batches,
		Duration:      time.Duration(rep.DurationSeconds * float64(time.Second)),
		StartedAt:     rep.StartedAt,
		Warning:       rep.Warning,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	c.bus.Publish(eventbus.Event{Type: topic, Data: ev})
}

func aggregate(rep *Report, outcomes []Outcome, maxReported int) {
	for _, o := range outcomes {
		if o.Sent {
			rep.Successful++
			continue
		}
		rep.Failed++
		if len(rep.FailedUsers) < maxReported {
			rep.FailedUsers = append(rep.FailedUsers, Failure{UserID: o.Recipient, Reason: o.Reason})
		}
	}
}

func countFailed(res []Outcome) int {
	n := 0
	for _, o := range res {
		if !o.Sent {
			n++
		}
	}
	return n
}

func roundSeconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*100) / 100
}

// IsClientError reports whether err was caused by the caller rather than the
// service or the provider.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrUnauthorized)
}
