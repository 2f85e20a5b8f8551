// Package schedule fires configured broadcasts on cron schedules.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"tgbroadcast/internal/broadcast"
	"tgbroadcast/internal/config"
	logx "tgbroadcast/pkg/logx"
)

// Runner performs one broadcast; *broadcast.Coordinator satisfies it.
type Runner interface {
	Run(ctx context.Context, req broadcast.Request) (broadcast.Report, error)
}

// Definition is a resolved schedule entry.
type Definition struct {
	Name      string
	Spec      string
	Token     string
	Message   string
	ParseMode broadcast.ParseMode
}

// FromConfig resolves enabled config entries, reading tokens from the
// environment when token_env is set.
func FromConfig(in []config.ScheduleConfig, getenv func(string) string) ([]Definition, error) {
	var (
		out  []Definition
		errs []error
	)
	for _, sc := range in {
		if !sc.IsEnabled() {
			continue
		}
		mode, err := broadcast.ParseParseMode(sc.ParseMode)
		if err != nil {
			errs = append(errs, fmt.Errorf("schedule %q: %w", sc.Name, err))
			continue
		}
		token := strings.TrimSpace(sc.Token)
		if env := strings.TrimSpace(sc.TokenEnv); env != "" && getenv != nil {
			if v := strings.TrimSpace(getenv(env)); v != "" {
				token = v
			}
		}
		if token == "" {
			errs = append(errs, fmt.Errorf("schedule %q: no bot token (token_env %q is empty)", sc.Name, sc.TokenEnv))
			continue
		}
		out = append(out, Definition{
			Name:      sc.Name,
			Spec:      config.ScheduleSpec(sc),
			Token:     token,
			Message:   sc.Message,
			ParseMode: mode,
		})
	}
	return out, errors.Join(errs...)
}

// Entry describes a registered schedule for status output.
type Entry struct {
	Name string    `json:"name"`
	Spec string    `json:"spec"`
	Next time.Time `json:"next"`
	Prev time.Time `json:"prev,omitempty"`
}

// Service owns a cron instance. Definitions can be swapped at any time with
// Apply; runs already in flight are not interrupted.
type Service struct {
	runner Runner
	log    logx.Logger
	parser cron.Parser

	mu      sync.Mutex
	c       *cron.Cron
	runCtx  context.Context
	cancel  context.CancelFunc
	defs    []Definition
	entries map[string]cron.EntryID
	timeout time.Duration
}

// New returns a stopped service. timeout bounds each scheduled run; 0 means none.
func New(runner Runner, log logx.Logger, timeout time.Duration) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		runner:  runner,
		log:     log.With(logx.String("comp", "schedule")),
		parser:  config.CronParser,
		entries: map[string]cron.EntryID{},
		timeout: timeout,
	}
}

// Apply validates defs and replaces the registered schedules.
func (s *Service) Apply(defs []Definition) error {
	seen := map[string]bool{}
	for _, d := range defs {
		if seen[d.Name] {
			return fmt.Errorf("duplicate schedule %q", d.Name)
		}
		seen[d.Name] = true
		if _, err := s.parser.Parse(d.Spec); err != nil {
			return fmt.Errorf("schedule %q: %w", d.Name, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.defs = append([]Definition(nil), defs...)
	if s.c != nil {
		s.registerLocked()
	}
	return nil
}

// Start begins firing schedules. It is a no-op when already started.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	cl := cronLogger{log: s.log}
	s.runCtx, s.cancel = context.WithCancel(ctx)
	s.c = cron.New(
		cron.WithParser(s.parser),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		cron.WithLogger(cl),
	)
	s.registerLocked()
	s.c.Start()
	s.log.Info("scheduler started", logx.Int("schedules", len(s.defs)))
}

// Stop stops the cron and waits for running broadcasts until ctx is done.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c, cancel := s.c, s.cancel
	s.c, s.cancel = nil, nil
	s.entries = map[string]cron.EntryID{}
	s.mu.Unlock()
	if c == nil {
		return
	}
	done := c.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out; cancelling running broadcasts")
	}
	cancel()
}

// Entries lists registered schedules sorted by name.
func (s *Service) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.defs))
	for _, d := range s.defs {
		e := Entry{Name: d.Name, Spec: d.Spec}
		if s.c != nil {
			if id, ok := s.entries[d.Name]; ok {
				ce := s.c.Entry(id)
				e.Next, e.Prev = ce.Next, ce.Prev
			}
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Service) registerLocked() {
	for name, id := range s.entries {
		s.c.Remove(id)
		delete(s.entries, name)
	}
	for _, d := range s.defs {
		id, err := s.c.AddJob(d.Spec, s.job(d))
		if err != nil {
			// specs were checked in Apply
			s.log.Error("schedule rejected", logx.String("schedule", d.Name), logx.Err(err))
			continue
		}
		s.entries[d.Name] = id
	}
}

func (s *Service) job(d Definition) cron.Job {
	return cron.FuncJob(func() {
		s.mu.Lock()
		ctx := s.runCtx
		s.mu.Unlock()
		if ctx == nil {
			return
		}
		s.fire(ctx, d)
	})
}

func (s *Service) fire(ctx context.Context, d Definition) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	log := s.log.With(logx.String("schedule", d.Name))
	rep, err := s.runner.Run(ctx, broadcast.Request{
		Token:     d.Token,
		Message:   d.Message,
		ParseMode: d.ParseMode,
		Origin:    "schedule:" + d.Name,
	})
	if err != nil {
		log.Error("scheduled broadcast failed", logx.Err(err))
		return
	}
	log.Info("scheduled broadcast done",
		logx.String("run_id", rep.RunID),
		logx.Int("successful", rep.Successful),
		logx.Int("failed", rep.Failed),
	)
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
