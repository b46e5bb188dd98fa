// Package systemd reports recorder state to systemd through sd_notify when
// running as a Type=notify unit. Outside systemd every call is a no-op.
package systemd

import (
	"fmt"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/smazurov/framerec/internal/events"
	"github.com/smazurov/framerec/internal/logging"
)

// Notifier sends readiness and status updates to the service manager.
type Notifier struct {
	logger logging.Logger
	notify func(state string) (bool, error)
}

// NewNotifier creates a notifier using NOTIFY_SOCKET from the environment.
func NewNotifier() *Notifier {
	return &Notifier{
		logger: logging.GetLogger("main"),
		notify: func(state string) (bool, error) { return daemon.SdNotify(false, state) },
	}
}

func (n *Notifier) send(state string) {
	sent, err := n.notify(state)
	if err != nil {
		n.logger.Debug("sd_notify failed", "state", state, "error", err)
		return
	}
	if sent {
		n.logger.Debug("sd_notify", "state", state)
	}
}

// Ready marks the service as started.
func (n *Notifier) Ready(status string) {
	n.send(daemon.SdNotifyReady + "\nSTATUS=" + status)
}

// Status updates the free-form status line shown by systemctl status.
func (n *Notifier) Status(status string) {
	n.send("STATUS=" + status)
}

// Stopping tells systemd the recording is being finalized.
func (n *Notifier) Stopping() {
	n.send(daemon.SdNotifyStopping + "\nSTATUS=Finalizing recording")
}

// FollowStats mirrors periodic session stats into the status line.
// The returned function unsubscribes.
func (n *Notifier) FollowStats(bus *events.Bus) func() {
	return bus.Subscribe(func(e events.SessionStatsEvent) {
		n.Status(StatsLine(e))
	})
}

// StatsLine formats a stats event for the status line.
func StatsLine(e events.SessionStatsEvent) string {
	var dropped uint64
	for _, c := range e.Dropped {
		dropped += c
	}
	return fmt.Sprintf("Recording %s: %d submitted, %d dropped, %d skipped, queue %d",
		e.Session, e.Submitted, dropped, e.Skipped, e.QueueDepth)
}
