package app

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "tgbroadcast/pkg/logx"
)

// sdNotifier talks to systemd over NOTIFY_SOCKET. Every call is a no-op when
// the process was not started by systemd.
type sdNotifier struct {
	enabled  bool
	watchdog bool
	log      logx.Logger
}

func (n sdNotifier) notify(state string) {
	if !n.enabled {
		return
	}
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		n.log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		n.log.Debug("sd_notify sent", logx.String("state", state))
	}
}

func (n sdNotifier) ready()     { n.notify(daemon.SdNotifyReady) }
func (n sdNotifier) stopping()  { n.notify(daemon.SdNotifyStopping) }
func (n sdNotifier) reloading() { n.notify(daemon.SdNotifyReloading) }

// watchdogLoop pings systemd at half the configured WatchdogSec until ctx is
// done. A broken watchdog setup is logged, never fatal.
func (n sdNotifier) watchdogLoop(ctx context.Context) error {
	if !n.enabled || !n.watchdog {
		return nil
	}
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		n.log.Warn("systemd watchdog disabled", logx.Err(err))
		return nil
	}
	if interval <= 0 {
		return nil
	}
	t := time.NewTicker(interval / 2)
	defer t.Stop()
	n.log.Info("systemd watchdog enabled", logx.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			n.notify(daemon.SdNotifyWatchdog)
		}
	}
}
