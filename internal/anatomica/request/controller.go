// Package request drives the lifecycle of a single leaf selection: resolve
// the selected item, show a transient status message, run the generation
// call, and deliver exactly one terminal message.
//
// Every failure inside the controller is converted into a user-facing
// message at the component boundary; nothing propagates out. The generation
// call is made at most once per selection — a failed request is retried only
// by the user re-selecting the leaf, which is a fresh, independent lifecycle.
package request

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aelkhatib/anatomica/common/trace"
	"github.com/aelkhatib/anatomica/internal/anatomica/gen"
	"github.com/aelkhatib/anatomica/internal/anatomica/menu"
	"github.com/aelkhatib/anatomica/internal/anatomica/navigation"
	"github.com/aelkhatib/anatomica/internal/anatomica/prompt"
	"github.com/aelkhatib/anatomica/internal/anatomica/taxonomy"
)

// User-facing terminal messages. The not-found and generation-failure
// apologies are deliberately distinct.
const (
	notFoundMessage = "L'élément demandé n'a pas été trouvé."
	failureMessage  = "Désolé, une erreur s'est produite lors de la récupération des informations. Réessayez plus tard."
	emptyResultFmt  = "Désolé, je n'ai pas pu récupérer les informations demandées pour %s."
)

// Messenger is the subset of the transport client the controller needs.
type Messenger interface {
	// SendText delivers a text message and returns its message id.
	SendText(ctx context.Context, chatID int64, text string) (int64, error)
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
}

// Selection is one inbound leaf-selection interaction.
type Selection struct {
	// ChatID is the originating conversation address.
	ChatID int64
	// MessageID is the menu message the selection was clicked on.
	MessageID int64
	// Token is the raw navigation token from the interaction.
	Token string
}

// Controller runs the per-selection state machine.
type Controller struct {
	tree      *taxonomy.Tree
	messenger Messenger
	generator gen.Generator
	// disclaimer, when non-empty, is appended to every delivered
	// description.
	disclaimer string
}

// NewController creates a Controller over the given collaborators.
func NewController(tree *taxonomy.Tree, messenger Messenger, generator gen.Generator, disclaimer string) *Controller {
	return &Controller{
		tree:       tree,
		messenger:  messenger,
		generator:  generator,
		disclaimer: disclaimer,
	}
}

// pendingRequest tracks the transient status message for one selection so
// that every exit path can clean it up before the terminal message.
type pendingRequest struct {
	chatID int64
	// noticeID is the status message handle; zero means no notice is
	// outstanding (it was never created, or already cleaned up).
	noticeID int64
}

// clear removes the outstanding status message, if any. Removal failure is
// logged and otherwise ignored: a stale notice is UI noise, not a fault.
func (p *pendingRequest) clear(ctx context.Context, m Messenger) {
	if p.noticeID == 0 {
		return
	}
	if err := m.DeleteMessage(ctx, p.chatID, p.noticeID); err != nil {
		slog.Warn("failed to remove status message",
			"req", trace.FromContext(ctx), "chat_id", p.chatID, "message_id", p.noticeID, "err", err)
	}
	p.noticeID = 0
}

// HandleSelection runs the full lifecycle for one leaf selection. It blocks
// for the duration of the generation call and must be invoked on its own
// goroutine when the caller is a per-conversation dispatch loop.
func (c *Controller) HandleSelection(ctx context.Context, sel Selection) {
	log := slog.With("req", trace.FromContext(ctx), "chat_id", sel.ChatID, "token", sel.Token)

	// Received: resolve the token to a leaf, searching only the section
	// named by the token's first segment.
	path, err := navigation.Decode(sel.Token)
	if err != nil || path.IsRoot() {
		log.Info("selection token does not resolve", "err", err)
		c.sendTerminal(ctx, sel.ChatID, notFoundMessage)
		return
	}

	leaf, ok := c.tree.FindLeaf(path.Section(), path.Last())
	if !ok {
		log.Info("no leaf for selection token")
		c.sendTerminal(ctx, sel.ChatID, notFoundMessage)
		return
	}

	// NotifyingPending: replace the menu message with the transient status
	// notice. Either step failing is non-fatal.
	if err := c.messenger.DeleteMessage(ctx, sel.ChatID, sel.MessageID); err != nil {
		log.Warn("failed to remove menu message", "message_id", sel.MessageID, "err", err)
	}

	pending := &pendingRequest{chatID: sel.ChatID}
	if noticeID, err := c.messenger.SendText(ctx, sel.ChatID, menu.LeafPending(leaf).Text); err != nil {
		log.Warn("failed to send status message", "err", err)
	} else {
		pending.noticeID = noticeID
	}

	// Generating: a section without a template cannot produce a query.
	section := prompt.FromLabel(path.Section())
	query, ok := prompt.For(section, leaf.Name)
	if !ok {
		log.Warn("no prompt template for section", "section", path.Section())
		pending.clear(ctx, c.messenger)
		c.sendTerminal(ctx, sel.ChatID, failureMessage)
		return
	}

	text, err := c.generator.Generate(ctx, query)

	// Delivering / Failed: on every path the status notice goes before the
	// single terminal message.
	pending.clear(ctx, c.messenger)

	switch {
	case err != nil:
		log.Error("generation call failed", "item", leaf.Name, "err", err)
		c.sendTerminal(ctx, sel.ChatID, failureMessage)
	case text == "":
		log.Warn("generation returned no usable text", "item", leaf.Name)
		c.sendTerminal(ctx, sel.ChatID, fmt.Sprintf(emptyResultFmt, leaf.Name))
	default:
		if c.disclaimer != "" {
			text += "\n\n" + c.disclaimer
		}
		log.Info("delivering generated description", "item", leaf.Name, "chars", len(text))
		c.sendTerminal(ctx, sel.ChatID, text)
	}
}

// sendTerminal delivers the single terminal message for a lifecycle. A
// delivery failure can only be logged at this point.
func (c *Controller) sendTerminal(ctx context.Context, chatID int64, text string) {
	if _, err := c.messenger.SendText(ctx, chatID, text); err != nil {
		slog.Error("failed to send terminal message",
			"req", trace.FromContext(ctx), "chat_id", chatID, "err", err)
	}
}
