// Package broadcast fans a single message out to every registered user.
//
// Whether a given message should be broadcast at all (owner identity plus
// trigger prefix) is decided by the caller; the dispatcher only delivers.
package broadcast

import (
	"context"
	"log/slog"

	"github.com/aelkhatib/anatomica/internal/anatomica/registry"
)

// Sender is the subset of the transport client the dispatcher needs.
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string) (int64, error)
}

// Report summarizes one broadcast pass.
type Report struct {
	Succeeded int
	Failed    int
}

// Dispatcher delivers broadcast messages.
type Dispatcher struct {
	sender Sender
}

// New creates a Dispatcher sending through the given transport.
func New(sender Sender) *Dispatcher {
	return &Dispatcher{sender: sender}
}

// Broadcast sends message to each recipient's chat. Every recipient is
// attempted: a failed delivery is logged with the recipient's identity and
// the pass continues. The report counts are for observability and tests;
// they are not surfaced to the triggering sender.
func (d *Dispatcher) Broadcast(ctx context.Context, message string, recipients []registry.User) Report {
	var report Report
	for _, u := range recipients {
		if _, err := d.sender.SendText(ctx, u.ChatID, message); err != nil {
			slog.Error("broadcast delivery failed",
				"user_id", u.UserID, "chat_id", u.ChatID, "full_name", u.FullName, "err", err)
			report.Failed++
			continue
		}
		report.Succeeded++
	}
	slog.Info("broadcast complete", "succeeded", report.Succeeded, "failed", report.Failed)
	return report
}
