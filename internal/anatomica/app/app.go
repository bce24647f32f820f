// Package app wires the assistant together: Telegram transport, taxonomy
// menus, the request lifecycle controller, the user registry, and owner
// broadcasts.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/aelkhatib/anatomica/common/trace"
	"github.com/aelkhatib/anatomica/internal/anatomica/broadcast"
	"github.com/aelkhatib/anatomica/internal/anatomica/gen"
	"github.com/aelkhatib/anatomica/internal/anatomica/menu"
	"github.com/aelkhatib/anatomica/internal/anatomica/navigation"
	"github.com/aelkhatib/anatomica/internal/anatomica/registry"
	"github.com/aelkhatib/anatomica/internal/anatomica/request"
	"github.com/aelkhatib/anatomica/internal/anatomica/store"
	"github.com/aelkhatib/anatomica/internal/anatomica/taxonomy"
	"github.com/aelkhatib/anatomica/internal/anatomica/telegram"
)

// Config holds application configuration.
type Config struct {
	// Telegram holds the Bot API connection parameters.
	Telegram telegram.Config
	// Generator produces item descriptions. Required.
	Generator gen.Generator
	// OwnerChatID is the conversation that receives new-user notifications
	// and may issue broadcasts.
	OwnerChatID int64
	// BroadcastPrefix marks an owner message as a broadcast. The prefix is
	// kept in the delivered text.
	BroadcastPrefix string
	// TaxonomyPath is the YAML taxonomy document. A missing or invalid
	// document degrades to an empty catalogue rather than failing startup.
	TaxonomyPath string
	// DatabasePath is the sqlite user registry. An unopenable database
	// degrades to in-memory registration for this process.
	DatabasePath string
	// Disclaimer, when non-empty, is appended to every generated
	// description.
	Disclaimer string
	// HTTPAddr is the TCP address for the health/status HTTP server. Empty
	// disables the server.
	HTTPAddr string
	// StaticDir, when non-empty, is served at / by the HTTP server.
	StaticDir string
}

// messenger is the transport surface the routing layer uses, satisfied by
// *telegram.Client and by test doubles.
type messenger interface {
	SendText(ctx context.Context, chatID int64, text string) (int64, error)
	SendMenu(ctx context.Context, chatID int64, payload menu.Payload) (int64, error)
	EditMenu(ctx context.Context, chatID, messageID int64, payload menu.Payload) error
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
	AnswerCallback(ctx context.Context, callbackID string) error
}

// App is the assembled assistant.
type App struct {
	config       *Config
	tg           *telegram.Client
	messenger    messenger
	tree         *taxonomy.Tree
	renderer     *menu.Renderer
	registry     *registry.Registry
	controller   *request.Controller
	broadcaster  *broadcast.Dispatcher
	dispatcher   *dispatcher
	store        *store.Store
	healthServer *HealthServer
}

// New creates the application. Only the transport and generator are load
// bearing; the taxonomy and the persistent registry degrade gracefully so a
// bad deploy still answers users.
func New(config *Config) (*App, error) {
	if config.Generator == nil {
		return nil, fmt.Errorf("app: generator is required")
	}

	tree, err := taxonomy.LoadFile(config.TaxonomyPath)
	if err != nil {
		slog.Error("taxonomy unavailable; starting with an empty catalogue",
			"path", config.TaxonomyPath, "err", err)
		tree = taxonomy.Empty()
	} else {
		slog.Info("taxonomy loaded", "path", config.TaxonomyPath, "sections", len(tree.Sections()))
	}

	tg, err := telegram.New(&config.Telegram)
	if err != nil {
		return nil, fmt.Errorf("create telegram client: %w", err)
	}

	var backend registry.Backend
	var db *store.Store
	db, err = store.New(config.DatabasePath)
	if err != nil {
		slog.Error("user store unavailable; registrations will not persist",
			"path", config.DatabasePath, "err", err)
		backend = registry.NewMemory()
		db = nil
	} else {
		backend = db
	}

	a := &App{
		config:      config,
		tg:          tg,
		messenger:   tg,
		tree:        tree,
		renderer:    menu.NewRenderer(tree),
		controller:  request.NewController(tree, tg, config.Generator, config.Disclaimer),
		broadcaster: broadcast.New(tg),
		store:       db,
	}
	a.registry = registry.New(backend, &ownerNotifier{messenger: tg, ownerChatID: config.OwnerChatID})
	a.dispatcher = newDispatcher(a.handleUpdate)

	if config.HTTPAddr != "" {
		a.healthServer = NewHealthServer(config.HTTPAddr, a.registry, tree, config.StaticDir)
	}
	return a, nil
}

// Run starts the HTTP server and the Telegram poll loop, then blocks until
// an interrupt signal arrives.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if a.healthServer != nil {
		if err := a.healthServer.Start(ctx); err != nil {
			slog.Warn("health server failed to start; continuing without it", "err", err)
		}
	}

	slog.Info("starting telegram poll loop")
	if err := a.tg.Start(ctx, a.dispatcher.Dispatch); err != nil {
		return fmt.Errorf("failed to start telegram client: %w", err)
	}

	slog.Info("anatomica is running; press Ctrl+C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down")
	return nil
}

// Stop releases all resources.
func (a *App) Stop() {
	a.tg.Stop()
	a.dispatcher.Close()
	if a.healthServer != nil {
		a.healthServer.Stop()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			slog.Warn("failed to close user store", "err", err)
		}
	}
}

// handleUpdate routes one update. It runs on a per-conversation worker, so
// interactions from the same chat are processed in arrival order.
func (a *App) handleUpdate(ctx context.Context, upd telegram.Update) {
	ctx = trace.WithID(ctx, trace.GenerateID())
	switch {
	case upd.CallbackQuery != nil:
		a.handleCallback(ctx, upd.CallbackQuery)
	case upd.Message != nil:
		a.handleMessage(ctx, upd.Message)
	}
}

// handleMessage processes a plain chat message: register the sender, run an
// owner broadcast when the message carries the broadcast prefix, and show
// the root menu otherwise.
func (a *App) handleMessage(ctx context.Context, msg *telegram.Message) {
	if msg.Chat == nil || msg.From == nil || msg.From.IsBot {
		return
	}
	log := slog.With("req", trace.FromContext(ctx), "chat_id", msg.Chat.ID)

	if _, err := a.registry.Register(ctx, registry.User{
		UserID:   msg.From.ID,
		ChatID:   msg.Chat.ID,
		FullName: msg.From.DisplayName(),
		Username: msg.From.Username,
		Language: msg.From.LanguageCode,
	}); err != nil {
		log.Error("failed to register user", "user_id", msg.From.ID, "err", err)
	}

	text := strings.TrimSpace(msg.Text)
	if msg.Chat.ID == a.config.OwnerChatID && a.config.BroadcastPrefix != "" &&
		strings.HasPrefix(text, a.config.BroadcastPrefix) {
		a.runBroadcast(ctx, text)
		return
	}

	if _, err := a.messenger.SendMenu(ctx, msg.Chat.ID, a.renderer.Root()); err != nil {
		log.Error("failed to send root menu", "err", err)
	}
}

// handleCallback processes an inline keyboard press: acknowledge it, then
// either redraw the menu in place for navigation tokens or hand leaf
// selections to the lifecycle controller.
func (a *App) handleCallback(ctx context.Context, cb *telegram.CallbackQuery) {
	log := slog.With("req", trace.FromContext(ctx), "token", cb.Data)

	if err := a.messenger.AnswerCallback(ctx, cb.ID); err != nil {
		log.Warn("failed to acknowledge callback", "err", err)
	}
	if cb.Message == nil || cb.Message.Chat == nil {
		log.Warn("callback without an originating message")
		return
	}
	chatID := cb.Message.Chat.ID
	menuMessageID := cb.Message.MessageID

	path, err := navigation.Decode(cb.Data)
	if err != nil {
		// The controller owns unresolvable tokens, malformed ones included,
		// and answers with the not-found apology.
		log.Warn("callback token does not decode", "err", err)
		go a.controller.HandleSelection(ctx, request.Selection{
			ChatID:    chatID,
			MessageID: menuMessageID,
			Token:     cb.Data,
		})
		return
	}

	if path.IsRoot() {
		if err := a.messenger.EditMenu(ctx, chatID, menuMessageID, a.renderer.Root()); err != nil {
			log.Error("failed to redraw root menu", "chat_id", chatID, "err", err)
		}
		return
	}

	if payload, err := a.renderer.Node(path); err == nil {
		if err := a.messenger.EditMenu(ctx, chatID, menuMessageID, payload); err != nil {
			log.Error("failed to redraw menu", "chat_id", chatID, "err", err)
		}
		return
	}

	// Not an internal node: treat as a leaf selection. The controller runs
	// on its own goroutine so a slow generation call does not hold up
	// further interactions from this conversation.
	go a.controller.HandleSelection(ctx, request.Selection{
		ChatID:    chatID,
		MessageID: menuMessageID,
		Token:     cb.Data,
	})
}

// runBroadcast delivers an owner announcement to every registered user.
func (a *App) runBroadcast(ctx context.Context, text string) {
	log := slog.With("req", trace.FromContext(ctx))

	users, err := a.registry.All(ctx)
	if err != nil {
		log.Error("failed to list broadcast recipients", "err", err)
		if _, err := a.messenger.SendText(ctx, a.config.OwnerChatID,
			"Impossible de récupérer la liste des utilisateurs."); err != nil {
			log.Error("failed to report broadcast failure to owner", "err", err)
		}
		return
	}

	report := a.broadcaster.Broadcast(ctx, text, users)
	summary := fmt.Sprintf("Diffusion terminée : %d envoyé(s), %d échec(s).",
		report.Succeeded, report.Failed)
	if _, err := a.messenger.SendText(ctx, a.config.OwnerChatID, summary); err != nil {
		log.Error("failed to send broadcast summary to owner", "err", err)
	}
}

// ownerNotifier tells the owner about each first-time registration.
type ownerNotifier struct {
	messenger   messenger
	ownerChatID int64
}

func (n *ownerNotifier) NewUser(ctx context.Context, u registry.User) {
	name := u.FullName
	if name == "" {
		name = "non renseigné"
	}
	username := u.Username
	if username == "" {
		username = "non renseigné"
	}
	language := u.Language
	if language == "" {
		language = "non renseignée"
	}
	text := fmt.Sprintf(
		"Nouvel utilisateur :\nNom complet : %s\nNom d'utilisateur : %s\nID utilisateur : %d\nID conversation : %d\nLangue : %s",
		name, username, u.UserID, u.ChatID, language)
	if _, err := n.messenger.SendText(ctx, n.ownerChatID, text); err != nil {
		slog.Warn("failed to notify owner of new user", "user_id", u.UserID, "err", err)
	}
}
