package telegram_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aelkhatib/anatomica/internal/anatomica/menu"
	"github.com/aelkhatib/anatomica/internal/anatomica/telegram"
)

const testToken = "12345:TESTTOKEN"

// apiCall is one recorded Bot API request.
type apiCall struct {
	method string
	body   map[string]any
}

// fakeAPI is an httptest-backed Bot API stub.
type fakeAPI struct {
	mu      sync.Mutex
	calls   []apiCall
	updates []json.RawMessage // drained one batch per getUpdates
	stubs   map[string]string // method -> result JSON
}

func (f *fakeAPI) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		prefix := "/bot" + testToken + "/"
		if !strings.HasPrefix(r.URL.Path, prefix) {
			t.Errorf("unexpected path %q", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		method := strings.TrimPrefix(r.URL.Path, prefix)

		var body map[string]any
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&body)
		}

		f.mu.Lock()
		f.calls = append(f.calls, apiCall{method: method, body: body})
		result := f.stubs[method]
		if method == "getUpdates" {
			if len(f.updates) > 0 {
				result = string(f.updates[0])
				f.updates = f.updates[1:]
			} else {
				result = "[]"
			}
		}
		f.mu.Unlock()

		if result == "" {
			result = "true"
		}
		fmt.Fprintf(w, `{"ok":true,"result":%s}`, result)
	}
}

func (f *fakeAPI) recorded() []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]apiCall(nil), f.calls...)
}

func newTestClient(t *testing.T, api *fakeAPI) *telegram.Client {
	t.Helper()
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)
	client, err := telegram.New(&telegram.Config{
		BaseURL:     srv.URL,
		Token:       testToken,
		PollTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return client
}

func TestNewRequiresToken(t *testing.T) {
	if _, err := telegram.New(&telegram.Config{}); err == nil {
		t.Fatal("New accepted an empty token")
	}
}

func TestSendTextReturnsMessageID(t *testing.T) {
	api := &fakeAPI{stubs: map[string]string{
		"sendMessage": `{"message_id":42,"chat":{"id":7}}`,
	}}
	client := newTestClient(t, api)

	id, err := client.SendText(context.Background(), 7, "bonjour")
	if err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if id != 42 {
		t.Errorf("message id = %d, want 42", id)
	}

	calls := api.recorded()
	if len(calls) != 1 || calls[0].method != "sendMessage" {
		t.Fatalf("recorded calls = %v", calls)
	}
	if calls[0].body["text"] != "bonjour" {
		t.Errorf("sent text = %v", calls[0].body["text"])
	}
	if _, hasMarkup := calls[0].body["reply_markup"]; hasMarkup {
		t.Error("plain text message carries a keyboard")
	}
}

func TestSendMenuBuildsKeyboard(t *testing.T) {
	api := &fakeAPI{stubs: map[string]string{
		"sendMessage": `{"message_id":9}`,
	}}
	client := newTestClient(t, api)

	payload := menu.Payload{
		Text: "Choisissez le type souhaité :",
		Choices: []menu.Choice{
			{Label: "Osteologie", Token: "Osteologie"},
			{Label: "Retour ⬅️", Token: "back_to_main"},
		},
	}
	if _, err := client.SendMenu(context.Background(), 7, payload); err != nil {
		t.Fatalf("SendMenu: %v", err)
	}

	calls := api.recorded()
	markup, ok := calls[0].body["reply_markup"].(map[string]any)
	if !ok {
		t.Fatalf("no reply_markup in %v", calls[0].body)
	}
	rows, ok := markup["inline_keyboard"].([]any)
	if !ok || len(rows) != 2 {
		t.Fatalf("inline_keyboard = %v, want 2 rows", markup["inline_keyboard"])
	}
	firstRow, ok := rows[0].([]any)
	if !ok || len(firstRow) != 1 {
		t.Fatalf("row 0 = %v, want a single button", rows[0])
	}
	button := firstRow[0].(map[string]any)
	if button["text"] != "Osteologie" || button["callback_data"] != "Osteologie" {
		t.Errorf("button = %v", button)
	}
}

func TestEditMenuTargetsMessage(t *testing.T) {
	api := &fakeAPI{}
	client := newTestClient(t, api)

	payload := menu.Payload{Text: "Sélectionnez un élément parmi Osteologie :"}
	if err := client.EditMenu(context.Background(), 7, 13, payload); err != nil {
		t.Fatalf("EditMenu: %v", err)
	}

	calls := api.recorded()
	if calls[0].method != "editMessageText" {
		t.Fatalf("method = %q", calls[0].method)
	}
	if calls[0].body["message_id"] != float64(13) {
		t.Errorf("message_id = %v, want 13", calls[0].body["message_id"])
	}
}

func TestStartDeliversUpdatesInOrder(t *testing.T) {
	api := &fakeAPI{stubs: map[string]string{
		"getMe": `{"id":1,"is_bot":true,"username":"anatomica_bot"}`,
	}, updates: []json.RawMessage{
		json.RawMessage(`[
			{"update_id":100,"message":{"message_id":1,"chat":{"id":7},"text":"/start"}},
			{"update_id":101,"callback_query":{"id":"cb1","data":"Osteologie","message":{"message_id":2,"chat":{"id":7}}}}
		]`),
	}}
	client := newTestClient(t, api)

	var mu sync.Mutex
	var got []int64
	done := make(chan struct{})
	err := client.Start(context.Background(), func(_ context.Context, upd telegram.Update) {
		mu.Lock()
		got = append(got, upd.UpdateID)
		if len(got) == 2 {
			close(done)
		}
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer client.Stop()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("updates were not delivered")
	}

	mu.Lock()
	defer mu.Unlock()
	if got[0] != 100 || got[1] != 101 {
		t.Errorf("delivery order = %v, want [100 101]", got)
	}

	// The first poll after the batch must acknowledge past the last update.
	// The poll loop issues that request asynchronously after the handler
	// returns, so allow it a moment to arrive.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		for _, call := range api.recorded() {
			if call.method == "getUpdates" && call.body["offset"] == float64(102) {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("no getUpdates call acknowledged offset 102")
}

func TestCallSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"ok":false,"description":"Bad Request: message to delete not found"}`)
	}))
	defer srv.Close()

	client, err := telegram.New(&telegram.Config{BaseURL: srv.URL, Token: testToken})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = client.DeleteMessage(context.Background(), 7, 99)
	if err == nil || !strings.Contains(err.Error(), "message to delete not found") {
		t.Errorf("err = %v, want the API description surfaced", err)
	}
}
