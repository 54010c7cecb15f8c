package app

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "finalword/pkg/logx"
)

// sdNotify reports state to systemd for Type=notify units. Outside systemd
// ($NOTIFY_SOCKET unset) it does nothing.
func (a *App) sdNotify(state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		a.log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		a.log.Debug("sd_notify", logx.String("state", state))
	}
}

// startWatchdog pings the systemd watchdog at half its interval while
// storage answers. A dead database lets systemd restart the unit.
func (a *App) startWatchdog() {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		a.log.Warn("systemd watchdog check failed", logx.Err(err))
		return
	}
	if interval <= 0 {
		return
	}
	tick := interval / 2
	a.sup.Go("systemd.watchdog", func(c context.Context) error {
		t := time.NewTicker(tick)
		defer t.Stop()
		for {
			select {
			case <-c.Done():
				return nil
			case <-t.C:
				pctx, cancel := context.WithTimeout(c, tick/2)
				err := a.store.Ping(pctx)
				cancel()
				if err != nil {
					a.log.Warn("watchdog ping withheld: storage unhealthy", logx.Err(err))
					continue
				}
				a.sdNotify(daemon.SdNotifyWatchdog)
			}
		}
	})
	a.log.Info("systemd watchdog enabled", logx.Duration("interval", interval))
}
