package app

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aelkhatib/anatomica/internal/anatomica/broadcast"
	"github.com/aelkhatib/anatomica/internal/anatomica/menu"
	"github.com/aelkhatib/anatomica/internal/anatomica/registry"
	"github.com/aelkhatib/anatomica/internal/anatomica/request"
	"github.com/aelkhatib/anatomica/internal/anatomica/taxonomy"
	"github.com/aelkhatib/anatomica/internal/anatomica/telegram"
)

const routingTaxonomy = `
Osteologie:
  Membre superieur:
    - id: Clavicule
      name: Clavicule
Myologie:
  Membre superieur:
    - id: Biceps
      name: Biceps brachial
`

// recordedCall is one messenger invocation.
type recordedCall struct {
	op      string
	chatID  int64
	payload menu.Payload
	text    string
}

// recordingMessenger satisfies both the app messenger and the controller's
// request.Messenger.
type recordingMessenger struct {
	mu     sync.Mutex
	calls  []recordedCall
	nextID int64
}

func (m *recordingMessenger) record(c recordedCall) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, c)
}

func (m *recordingMessenger) SendText(_ context.Context, chatID int64, text string) (int64, error) {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.calls = append(m.calls, recordedCall{op: "sendText", chatID: chatID, text: text})
	m.mu.Unlock()
	return id, nil
}

func (m *recordingMessenger) SendMenu(_ context.Context, chatID int64, payload menu.Payload) (int64, error) {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.calls = append(m.calls, recordedCall{op: "sendMenu", chatID: chatID, payload: payload})
	m.mu.Unlock()
	return id, nil
}

func (m *recordingMessenger) EditMenu(_ context.Context, chatID, _ int64, payload menu.Payload) error {
	m.record(recordedCall{op: "editMenu", chatID: chatID, payload: payload})
	return nil
}

func (m *recordingMessenger) DeleteMessage(_ context.Context, chatID, _ int64) error {
	m.record(recordedCall{op: "delete", chatID: chatID})
	return nil
}

func (m *recordingMessenger) AnswerCallback(_ context.Context, _ string) error {
	m.record(recordedCall{op: "answerCallback"})
	return nil
}

func (m *recordingMessenger) recorded() []recordedCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]recordedCall(nil), m.calls...)
}

// ops filters the recorded operation names.
func (m *recordingMessenger) ops() []string {
	var out []string
	for _, c := range m.recorded() {
		out = append(out, c.op)
	}
	return out
}

type routingGenerator struct {
	mu    sync.Mutex
	calls int
}

func (g *routingGenerator) Generate(context.Context, string) (string, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	return "description", nil
}

func (g *routingGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func newRoutingApp(t *testing.T, messenger *recordingMessenger, generator *routingGenerator) *App {
	t.Helper()
	tree, err := taxonomy.Load(strings.NewReader(routingTaxonomy))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	config := &Config{
		OwnerChatID:     1000,
		BroadcastPrefix: "Nouvelle mise à jour",
	}
	a := &App{
		config:      config,
		messenger:   messenger,
		tree:        tree,
		renderer:    menu.NewRenderer(tree),
		controller:  request.NewController(tree, messenger, generator, ""),
		broadcaster: broadcast.New(messenger),
	}
	a.registry = registry.New(registry.NewMemory(), &ownerNotifier{messenger: messenger, ownerChatID: config.OwnerChatID})
	return a
}

func TestMessageRegistersAndSendsRootMenu(t *testing.T) {
	messenger := &recordingMessenger{}
	a := newRoutingApp(t, messenger, &routingGenerator{})

	a.handleMessage(context.Background(), &telegram.Message{
		MessageID: 1,
		Chat:      &telegram.Chat{ID: 7, Type: "private"},
		From:      &telegram.User{ID: 7, FirstName: "Amine"},
		Text:      "/start",
	})

	calls := messenger.recorded()
	// First registration notifies the owner, then the root menu goes out.
	if len(calls) != 2 {
		t.Fatalf("got calls %v, want owner notification and root menu", calls)
	}
	if calls[0].op != "sendText" || calls[0].chatID != 1000 {
		t.Errorf("call 0 = %+v, want new-user notification to owner chat", calls[0])
	}
	if !strings.Contains(calls[0].text, "Amine") {
		t.Errorf("owner notification does not name the user: %q", calls[0].text)
	}
	if calls[1].op != "sendMenu" || calls[1].chatID != 7 {
		t.Fatalf("call 1 = %+v, want root menu to the user", calls[1])
	}
	if len(calls[1].payload.Choices) != 2 {
		t.Errorf("root menu has %d choices, want 2 sections", len(calls[1].payload.Choices))
	}

	// A repeat message must not notify the owner again.
	a.handleMessage(context.Background(), &telegram.Message{
		MessageID: 2,
		Chat:      &telegram.Chat{ID: 7, Type: "private"},
		From:      &telegram.User{ID: 7, FirstName: "Amine"},
		Text:      "/start",
	})
	for _, c := range messenger.recorded()[2:] {
		if c.op == "sendText" && c.chatID == 1000 {
			t.Errorf("repeat registration notified the owner: %+v", c)
		}
	}
}

func TestCallbackNavigationEditsMenuInPlace(t *testing.T) {
	messenger := &recordingMessenger{}
	a := newRoutingApp(t, messenger, &routingGenerator{})

	cb := &telegram.CallbackQuery{
		ID:      "cb1",
		Data:    "Osteologie",
		Message: &telegram.Message{MessageID: 5, Chat: &telegram.Chat{ID: 7}},
	}
	a.handleCallback(context.Background(), cb)

	ops := messenger.ops()
	if len(ops) != 2 || ops[0] != "answerCallback" || ops[1] != "editMenu" {
		t.Fatalf("ops = %v, want [answerCallback editMenu]", ops)
	}
	payload := messenger.recorded()[1].payload
	if !strings.Contains(payload.Text, "Osteologie") {
		t.Errorf("menu prompt = %q, want the section named", payload.Text)
	}
}

func TestCallbackBackTokenRedrawsRoot(t *testing.T) {
	messenger := &recordingMessenger{}
	a := newRoutingApp(t, messenger, &routingGenerator{})

	a.handleCallback(context.Background(), &telegram.CallbackQuery{
		ID:      "cb1",
		Data:    "back_to_main",
		Message: &telegram.Message{MessageID: 5, Chat: &telegram.Chat{ID: 7}},
	})

	calls := messenger.recorded()
	if len(calls) != 2 || calls[1].op != "editMenu" {
		t.Fatalf("calls = %v, want the root menu redrawn", calls)
	}
	if len(calls[1].payload.Choices) != 2 {
		t.Errorf("redrawn menu has %d choices, want the 2 root sections", len(calls[1].payload.Choices))
	}
}

func TestCallbackLeafSelectionRunsLifecycle(t *testing.T) {
	messenger := &recordingMessenger{}
	generator := &routingGenerator{}
	a := newRoutingApp(t, messenger, generator)

	a.handleCallback(context.Background(), &telegram.CallbackQuery{
		ID:      "cb1",
		Data:    "Osteologie_Clavicule",
		Message: &telegram.Message{MessageID: 5, Chat: &telegram.Chat{ID: 7}},
	})

	// The lifecycle runs on its own goroutine; wait for the terminal message.
	deadline := time.Now().Add(5 * time.Second)
	for {
		var delivered bool
		for _, c := range messenger.recorded() {
			if c.op == "sendText" && c.chatID == 7 && c.text == "description" {
				delivered = true
			}
		}
		if delivered {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("no generated description delivered; calls = %v", messenger.recorded())
		}
		time.Sleep(10 * time.Millisecond)
	}
	if generator.callCount() != 1 {
		t.Errorf("generator called %d times, want 1", generator.callCount())
	}
}

func TestConcurrentSelectionsBothComplete(t *testing.T) {
	messenger := &recordingMessenger{}
	generator := &routingGenerator{}
	a := newRoutingApp(t, messenger, generator)

	for i, token := range []string{"Osteologie_Clavicule", "Myologie_Biceps"} {
		a.handleCallback(context.Background(), &telegram.CallbackQuery{
			ID:      "cb",
			Data:    token,
			Message: &telegram.Message{MessageID: int64(10 + i), Chat: &telegram.Chat{ID: 7}},
		})
	}

	// Both lifecycles must deliver a terminal message; completion order is
	// not specified.
	deadline := time.Now().Add(5 * time.Second)
	for {
		var delivered int
		for _, c := range messenger.recorded() {
			if c.op == "sendText" && c.chatID == 7 && c.text == "description" {
				delivered++
			}
		}
		if delivered == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("delivered %d terminal messages, want 2; calls = %v", delivered, messenger.recorded())
		}
		time.Sleep(10 * time.Millisecond)
	}
	if generator.callCount() != 2 {
		t.Errorf("generator called %d times, want 2", generator.callCount())
	}
}

func TestCallbackMalformedTokenGetsApology(t *testing.T) {
	messenger := &recordingMessenger{}
	generator := &routingGenerator{}
	a := newRoutingApp(t, messenger, generator)

	a.handleCallback(context.Background(), &telegram.CallbackQuery{
		ID:      "cb1",
		Data:    "__",
		Message: &telegram.Message{MessageID: 5, Chat: &telegram.Chat{ID: 7}},
	})

	// The apology is delivered asynchronously by the lifecycle controller.
	deadline := time.Now().Add(5 * time.Second)
	for {
		var apologies int
		for _, c := range messenger.recorded() {
			if c.op == "sendText" && c.chatID == 7 &&
				c.text == "L'élément demandé n'a pas été trouvé." {
				apologies++
			}
		}
		if apologies == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("no not-found apology delivered; calls = %v", messenger.recorded())
		}
		time.Sleep(10 * time.Millisecond)
	}

	if generator.callCount() != 0 {
		t.Errorf("generator called for a malformed token")
	}
	// The menu stays in place: no edit and no deletion for an unresolvable
	// token.
	for _, op := range messenger.ops() {
		if op == "editMenu" || op == "delete" {
			t.Errorf("unexpected %q operation for a malformed token", op)
		}
	}
}

func TestOwnerBroadcastReachesAllUsers(t *testing.T) {
	messenger := &recordingMessenger{}
	a := newRoutingApp(t, messenger, &routingGenerator{})

	// Register two users plus the owner.
	for _, id := range []int64{7, 8, 1000} {
		a.handleMessage(context.Background(), &telegram.Message{
			Chat: &telegram.Chat{ID: id, Type: "private"},
			From: &telegram.User{ID: id, FirstName: "U"},
			Text: "/start",
		})
	}
	before := len(messenger.recorded())

	announcement := "Nouvelle mise à jour : le chapitre Arthrologie est disponible."
	a.handleMessage(context.Background(), &telegram.Message{
		Chat: &telegram.Chat{ID: 1000, Type: "private"},
		From: &telegram.User{ID: 1000, FirstName: "Owner"},
		Text: announcement,
	})

	var broadcastTo []int64
	var summaries int
	for _, c := range messenger.recorded()[before:] {
		if c.op != "sendText" {
			t.Errorf("unexpected call during broadcast: %+v", c)
			continue
		}
		if c.text == announcement {
			broadcastTo = append(broadcastTo, c.chatID)
		}
		if strings.Contains(c.text, "Diffusion terminée") {
			summaries++
		}
	}
	if len(broadcastTo) != 3 {
		t.Errorf("broadcast reached chats %v, want all 3 registered users", broadcastTo)
	}
	if summaries != 1 {
		t.Errorf("owner received %d summaries, want 1", summaries)
	}
}

func TestNonOwnerPrefixedTextIsNotABroadcast(t *testing.T) {
	messenger := &recordingMessenger{}
	a := newRoutingApp(t, messenger, &routingGenerator{})

	a.handleMessage(context.Background(), &telegram.Message{
		Chat: &telegram.Chat{ID: 7, Type: "private"},
		From: &telegram.User{ID: 7, FirstName: "Amine"},
		Text: "Nouvelle mise à jour : je suis un imposteur.",
	})

	for _, c := range messenger.recorded() {
		if c.op == "sendText" && c.chatID != 1000 {
			t.Errorf("non-owner text was broadcast: %+v", c)
		}
	}
	// The sender still gets the root menu.
	ops := messenger.ops()
	if ops[len(ops)-1] != "sendMenu" {
		t.Errorf("ops = %v, want the root menu as the final call", ops)
	}
}
