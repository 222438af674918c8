package notify

import (
	"context"

	"github.com/hashicorp/go-multierror"

	"github.com/oszuidwest/zwfm-recorder/internal/config"
	"github.com/oszuidwest/zwfm-recorder/internal/events"
	"github.com/oszuidwest/zwfm-recorder/internal/types"
	"github.com/oszuidwest/zwfm-recorder/internal/util"
)

// Notifier fans recording events out to the configured channels. Session
// lifecycle goes to the event log and webhook; failures and forced stops
// additionally go to email. Each channel is skipped silently when not
// configured, so an unconfigured notifier costs nothing.
type Notifier struct {
	cfg *config.Config
}

// New creates a notifier reading channel configuration live, so config
// changes apply to the next event without a restart.
func New(cfg *config.Config) *Notifier {
	return &Notifier{cfg: cfg}
}

// Attach subscribes the notifier to the bus until ctx ends.
func (n *Notifier) Attach(ctx context.Context, bus *events.Bus) error {
	var errs *multierror.Error
	errs = multierror.Append(errs,
		events.Subscribe(ctx, bus, n.onSessionStarted),
		events.Subscribe(ctx, bus, n.onSessionStopped),
		events.Subscribe(ctx, bus, n.onSessionError),
		events.Subscribe(ctx, bus, n.onSafetyWarning),
		events.Subscribe(ctx, bus, n.onAutoStop),
	)
	return errs.ErrorOrNil()
}

func (n *Notifier) onSessionStarted(ev events.SessionStarted) {
	snap := n.cfg.Snapshot()
	n.log(snap, types.EventLogEntry{
		Timestamp: util.RFC3339Now(),
		Event:     "recording_started",
		SessionID: ev.Session.ID,
		Profile:   ev.Session.ProfileID,
		Output:    ev.Session.OutputPath,
	})
	if snap.HasWebhook() {
		util.NotifyResultf(
			func() error { return SendSessionWebhook(snap.WebhookURL, "recording_started", ev.Session) },
			"webhook", true, "recording started %s", ev.Session.ID)
	}
}

func (n *Notifier) onSessionStopped(ev events.SessionStopped) {
	snap := n.cfg.Snapshot()
	n.log(snap, types.EventLogEntry{
		Timestamp:       util.RFC3339Now(),
		Event:           "recording_stopped",
		SessionID:       ev.Session.ID,
		Profile:         ev.Session.ProfileID,
		Output:          ev.Session.OutputPath,
		Reason:          string(ev.Session.StopReason),
		DurationSeconds: ev.Session.DurationSeconds,
		SizeBytes:       ev.Session.SizeBytes,
	})
	if snap.HasWebhook() {
		util.NotifyResultf(
			func() error { return SendSessionWebhook(snap.WebhookURL, "recording_stopped", ev.Session) },
			"webhook", true, "recording stopped %s", ev.Session.ID)
	}
}

func (n *Notifier) onSessionError(ev events.SessionError) {
	snap := n.cfg.Snapshot()
	n.log(snap, types.EventLogEntry{
		Timestamp: util.RFC3339Now(),
		Event:     "recording_error",
		SessionID: ev.Session.ID,
		Profile:   ev.Session.ProfileID,
		Output:    ev.Session.OutputPath,
		Message:   ev.Error,
	})
	if snap.HasWebhook() {
		util.NotifyResultf(
			func() error { return SendSessionWebhook(snap.WebhookURL, "recording_error", ev.Session) },
			"webhook", true, "recording error %s", ev.Session.ID)
	}
	if snap.HasEmail() {
		util.NotifyResultf(
			func() error { return SendFailureAlert(EmailConfigFromSnapshot(snap), ev.Session, ev.Error) },
			"email", true, "failure alert for %s", ev.Session.ID)
	}
}

func (n *Notifier) onSafetyWarning(ev events.SafetyWarning) {
	snap := n.cfg.Snapshot()
	n.log(snap, types.EventLogEntry{
		Timestamp: util.RFC3339Now(),
		Event:     "safety_warning",
		Reason:    ev.Kind,
		Message:   ev.Message,
	})
	if snap.HasWebhook() {
		util.NotifyResultf(
			func() error { return SendSafetyWebhook(snap.WebhookURL, "safety_warning", ev.Kind, ev.Message) },
			"webhook", true, "safety warning %s", ev.Kind)
	}
}

func (n *Notifier) onAutoStop(ev events.AutoStopTriggered) {
	snap := n.cfg.Snapshot()
	n.log(snap, types.EventLogEntry{
		Timestamp: util.RFC3339Now(),
		Event:     "recording_auto_stopped",
		Reason:    string(ev.Reason),
		Message:   ev.Message,
	})
	if snap.HasWebhook() {
		util.NotifyResultf(
			func() error {
				return SendSafetyWebhook(snap.WebhookURL, "recording_auto_stopped", string(ev.Reason), ev.Message)
			},
			"webhook", true, "auto stop %s", ev.Reason)
	}
	if snap.HasEmail() {
		util.NotifyResultf(
			func() error { return SendAutoStopAlert(EmailConfigFromSnapshot(snap), ev.Reason, ev.Message) },
			"email", true, "auto stop alert %s", ev.Reason)
	}
}

func (n *Notifier) log(snap config.Snapshot, entry types.EventLogEntry) {
	if !snap.HasLogPath() {
		return
	}
	util.NotifyResultf(
		func() error { return appendLogEntry(snap.LogPath, entry) },
		"log", false, "")
}
