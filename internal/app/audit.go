package app

import (
	"context"
	"time"

	"tgbroadcast/internal/broadcast"
	"tgbroadcast/internal/eventbus"
	"tgbroadcast/internal/storage"
	logx "tgbroadcast/pkg/logx"
)

// auditRecorder persists finished and failed runs from the event bus.
type auditRecorder struct {
	store storage.Store
	log   logx.Logger
}

// run drains events until ctx is done or the channel closes. A failing
// write is logged and the run is lost; broadcasts never wait on the store.
func (r *auditRecorder) run(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			r.record(ctx, e)
		}
	}
}

func (r *auditRecorder) record(ctx context.Context, e eventbus.Event) {
	ev, ok := e.Data.(broadcast.RunEvent)
	if !ok {
		return
	}
	rec := runRecord(e.Type, ev)
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := r.store.AppendRun(wctx, rec); err != nil {
		r.log.Warn("audit write failed", logx.String("run_id", rec.RunID), logx.Err(err))
		return
	}
	r.log.Debug("run recorded", logx.String("run_id", rec.RunID), logx.String("status", rec.Status))
}

func runRecord(topic string, ev broadcast.RunEvent) storage.RunRecord {
	status := storage.StatusFinished
	switch {
	case topic == eventbus.TopicRunFailed:
		status = storage.StatusFailed
	case ev.Total == 0:
		status = storage.StatusEmpty
	}
	return storage.RunRecord{
		RunID:         ev.RunID,
		StartedAt:     ev.StartedAt,
		Origin:        ev.Origin,
		Bot:           ev.Bot,
		BotID:         ev.BotID,
		Status:        status,
		ParseMode:     ev.ParseMode,
		Total:         ev.Total,
		Successful:    ev.Successful,
		Failed:        ev.Failed,
		MessageLength: ev.MessageLength,
		Batches:       ev.Batches,
		DurationMS:    ev.Duration.Milliseconds(),
		Warning:       ev.Warning,
		Error:         ev.Error,
	}
}
