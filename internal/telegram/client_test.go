package telegram

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

	"github.com/shopmux/shopmux/internal/transport"
)

// fakeAPI is a minimal Bot API stand-in.
type fakeAPI struct {
	mu      sync.Mutex
	calls   []string
	updates []apiUpdate
	params  map[string]map[string]any
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{params: map[string]map[string]any{}}
}

func (f *fakeAPI) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/"), "/")
		if len(parts) != 2 {
			t.Errorf("unexpected path %q", r.URL.Path)
			return
		}
		token, method := strings.TrimPrefix(parts[0], "bot"), parts[1]

		var params map[string]any
		if ct := r.Header.Get("Content-Type"); strings.HasPrefix(ct, "application/json") {
			_ = json.NewDecoder(r.Body).Decode(&params)
		}

		f.mu.Lock()
		f.calls = append(f.calls, method)
		f.params[method] = params
		updates := f.updates
		f.updates = nil
		f.mu.Unlock()

		writeOK := func(result any) {
			data, _ := json.Marshal(result)
			fmt.Fprintf(w, `{"ok":true,"result":%s}`, data)
		}

		if token == "bad-token" {
			w.WriteHeader(http.StatusOK)
			fmt.Fprint(w, `{"ok":false,"error_code":401,"description":"Unauthorized"}`)
			return
		}

		switch method {
		case "getMe":
			writeOK(apiUser{ID: 42, Username: "shop_bot", FirstName: "Shop"})
		case "getUpdates":
			writeOK(updates)
		case "deleteWebhook", "sendMessage", "editMessageText", "answerCallbackQuery", "sendPhoto", "setMyCommands":
			writeOK(true)
		default:
			t.Errorf("unexpected method %q", method)
		}
	})
}

func (f *fakeAPI) callCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == method {
			n++
		}
	}
	return n
}

func (f *fakeAPI) lastParams(method string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.params[method]
}

func (f *fakeAPI) queue(updates ...apiUpdate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, updates...)
}

func newTestOpener(t *testing.T, api *fakeAPI) *Opener {
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)
	return NewOpener(srv.URL, 100*time.Millisecond)
}

func TestValidate(t *testing.T) {
	opener := newTestOpener(t, newFakeAPI())

	id, err := opener.Validate(context.Background(), "good-token")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if id.ID != 42 || id.Username != "shop_bot" {
		t.Fatalf("unexpected identity %+v", id)
	}

	_, err = opener.Validate(context.Background(), "bad-token")
	if !transport.IsIdentityInvalid(err) {
		t.Fatalf("expected identity-invalid error, got %v", err)
	}
}

func TestSetupIdentityInstallsCommands(t *testing.T) {
	api := newFakeAPI()
	opener := newTestOpener(t, api)

	if err := opener.SetupIdentity(context.Background(), "good-token"); err != nil {
		t.Fatalf("setup identity: %v", err)
	}
	params := api.lastParams("setMyCommands")
	if params["commands"] == nil {
		t.Fatal("expected a command menu in the request")
	}
}

func TestReceiveNextMessageAndOffset(t *testing.T) {
	api := newFakeAPI()
	opener := newTestOpener(t, api)

	sess, err := opener.Open(context.Background(), "good-token")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer sess.Close()

	api.queue(
		apiUpdate{UpdateID: 100, Message: &apiMessage{
			MessageID: 1, From: &apiUser{ID: 7, Username: "alice"},
			Chat: apiChat{ID: 7}, Text: "/start",
		}},
		apiUpdate{UpdateID: 101, CallbackQuery: &apiCallbackQuery{
			ID: "cb1", From: &apiUser{ID: 7}, Data: "buy:3",
			Message: &apiMessage{MessageID: 2, Chat: apiChat{ID: 7}},
		}},
	)

	ev, err := sess.ReceiveNext(context.Background())
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if ev.Message == nil || ev.Message.Text != "/start" || ev.From().ID != 7 {
		t.Fatalf("unexpected event %+v", ev)
	}

	ev, err = sess.ReceiveNext(context.Background())
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if ev.Callback == nil || ev.Callback.Data != "buy:3" || ev.ChatID() != 7 {
		t.Fatalf("unexpected event %+v", ev)
	}

	// Next poll must acknowledge past the last update.
	api.queue(apiUpdate{UpdateID: 102, Message: &apiMessage{MessageID: 3, Chat: apiChat{ID: 7}, Text: "hi"}})
	if _, err := sess.ReceiveNext(context.Background()); err != nil {
		t.Fatalf("receive: %v", err)
	}
	params := api.lastParams("getUpdates")
	if off, _ := params["offset"].(float64); int64(off) != 102 {
		t.Fatalf("expected offset 102, got %v", params["offset"])
	}
}

func TestDiscardPending(t *testing.T) {
	api := newFakeAPI()
	opener := newTestOpener(t, api)

	sess, err := opener.Open(context.Background(), "good-token")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer sess.Close()

	if err := sess.DiscardPending(context.Background()); err != nil {
		t.Fatalf("discard: %v", err)
	}
	if api.callCount("deleteWebhook") != 1 {
		t.Fatal("expected one deleteWebhook call")
	}
	params := api.lastParams("deleteWebhook")
	if drop, _ := params["drop_pending_updates"].(bool); !drop {
		t.Fatal("expected drop_pending_updates=true")
	}
}

func TestSendPicksMethod(t *testing.T) {
	api := newFakeAPI()
	opener := newTestOpener(t, api)

	sess, err := opener.Open(context.Background(), "good-token")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer sess.Close()

	ctx := context.Background()
	cases := []struct {
		name   string
		msg    *transport.Outbound
		method string
	}{
		{"plain", &transport.Outbound{ChatID: 1, Text: "hello"}, "sendMessage"},
		{"edit", &transport.Outbound{ChatID: 1, Text: "edited", EditMessageID: 9}, "editMessageText"},
		{"callback", &transport.Outbound{CallbackID: "cb1", Text: "done"}, "answerCallbackQuery"},
		{"photo", &transport.Outbound{ChatID: 1, Photo: []byte{1, 2, 3}, PhotoName: "qr.png"}, "sendPhoto"},
	}
	for _, tc := range cases {
		if err := sess.Send(ctx, tc.msg); err != nil {
			t.Fatalf("%s: send: %v", tc.name, err)
		}
		if api.callCount(tc.method) != 1 {
			t.Fatalf("%s: expected one %s call", tc.name, tc.method)
		}
	}
}

func TestSendInlineKeyboard(t *testing.T) {
	api := newFakeAPI()
	opener := newTestOpener(t, api)

	sess, err := opener.Open(context.Background(), "good-token")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer sess.Close()

	msg := &transport.Outbound{
		ChatID: 1,
		Text:   "pick",
		Buttons: [][]transport.Button{
			{{Text: "Buy", Data: "buy:1"}},
		},
	}
	if err := sess.Send(context.Background(), msg); err != nil {
		t.Fatalf("send: %v", err)
	}
	params := api.lastParams("sendMessage")
	if params["reply_markup"] == nil {
		t.Fatal("expected reply_markup on keyboard send")
	}
}

func TestCloseUnblocksReceive(t *testing.T) {
	api := newFakeAPI()
	opener := newTestOpener(t, api)

	sess, err := opener.Open(context.Background(), "good-token")
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	errc := make(chan error, 1)
	go func() {
		// No updates queued: this blocks in repeated polls until Close.
		_, err := sess.ReceiveNext(context.Background())
		errc <- err
	}()

	time.Sleep(20 * time.Millisecond)
	sess.Close()

	select {
	case err := <-errc:
		if err != transport.ErrClosed {
			t.Fatalf("expected ErrClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("receive did not unblock after close")
	}
}
