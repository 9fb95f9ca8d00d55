// Package telegram is the Bot API binding behind the transport contract.
// It speaks plain HTTP long polling; nothing outside this package imports
// the wire types.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopmux/shopmux/internal/transport"
)

// DefaultAPIBase is the production Bot API endpoint.
const DefaultAPIBase = "https://api.telegram.org"

// Opener opens Bot API sessions from bot tokens. It implements
// transport.Opener.
type Opener struct {
	apiBase     string
	pollTimeout time.Duration
	httpc       *http.Client
}

// NewOpener builds an Opener. apiBase may be empty for production; tests
// point it at an httptest server.
func NewOpener(apiBase string, pollTimeout time.Duration) *Opener {
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}
	if pollTimeout <= 0 {
		pollTimeout = 30 * time.Second
	}
	return &Opener{
		apiBase:     strings.TrimRight(apiBase, "/"),
		pollTimeout: pollTimeout,
		// The long poll holds the connection for pollTimeout; give the
		// client room beyond that.
		httpc: &http.Client{Timeout: pollTimeout + 15*time.Second},
	}
}

// Validate checks a token with getMe without opening a session.
func (o *Opener) Validate(ctx context.Context, token string) (transport.Identity, error) {
	var me apiUser
	if err := o.call(ctx, token, "getMe", nil, &me); err != nil {
		return transport.Identity{}, err
	}
	return transport.Identity{ID: me.ID, Username: me.Username, Name: me.FirstName}, nil
}

// Open validates the token and returns an exclusive session on it.
func (o *Opener) Open(ctx context.Context, token string) (transport.Session, error) {
	id, err := o.Validate(ctx, token)
	if err != nil {
		return nil, err
	}
	sctx, cancel := context.WithCancel(context.Background())
	return &Session{
		opener: o,
		token:  token,
		id:     id,
		ctx:    sctx,
		cancel: cancel,
	}, nil
}

// SetupIdentity installs the default command menu on a freshly provisioned
// bot. Cosmetic only.
func (o *Opener) SetupIdentity(ctx context.Context, token string) error {
	params := map[string]any{
		"commands": []map[string]string{
			{"command": "start", "description": "Open the shop"},
			{"command": "shop", "description": "Manage your shop"},
		},
	}
	return o.call(ctx, token, "setMyCommands", params, nil)
}

// ---------------------------------------------------------------------------
// Wire types
// ---------------------------------------------------------------------------

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
	ErrorCode   int             `json:"error_code"`
}

type apiUser struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
}

type apiChat struct {
	ID int64 `json:"id"`
}

type apiPhotoSize struct {
	FileID string `json:"file_id"`
}

type apiMessage struct {
	MessageID int64          `json:"message_id"`
	From      *apiUser       `json:"from"`
	Chat      apiChat        `json:"chat"`
	Text      string         `json:"text"`
	Caption   string         `json:"caption"`
	Photo     []apiPhotoSize `json:"photo"`
}

type apiCallbackQuery struct {
	ID      string      `json:"id"`
	From    *apiUser    `json:"from"`
	Data    string      `json:"data"`
	Message *apiMessage `json:"message"`
}

type apiUpdate struct {
	UpdateID      int64             `json:"update_id"`
	Message       *apiMessage       `json:"message"`
	CallbackQuery *apiCallbackQuery `json:"callback_query"`
}

type inlineButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data,omitempty"`
	URL          string `json:"url,omitempty"`
}

type inlineMarkup struct {
	InlineKeyboard [][]inlineButton `json:"inline_keyboard"`
}

type replyButton struct {
	Text string `json:"text"`
}

type replyMarkup struct {
	Keyboard       [][]replyButton `json:"keyboard"`
	ResizeKeyboard bool            `json:"resize_keyboard"`
}

// ---------------------------------------------------------------------------
// Low-level call
// ---------------------------------------------------------------------------

// call POSTs a JSON method and decodes the result. A 401/404 from the
// platform means the token itself is bad, not that the network hiccuped.
func (o *Opener) call(ctx context.Context, token, method string, params any, result any) error {
	var body io.Reader
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("telegram: encode %s: %w", method, err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.methodURL(token, method), body)
	if err != nil {
		return fmt.Errorf("telegram: build %s request: %w", method, err)
	}
	if params != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return o.do(req, method, result)
}

func (o *Opener) methodURL(token, method string) string {
	return o.apiBase + "/bot" + url.PathEscape(token) + "/" + method
}

func (o *Opener) do(req *http.Request, method string, result any) error {
	resp, err := o.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: %s: %w", method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return fmt.Errorf("telegram: read %s response: %w", method, err)
	}
	var api apiResponse
	if err := json.Unmarshal(data, &api); err != nil {
		return fmt.Errorf("telegram: decode %s response: %w", method, err)
	}
	if !api.OK {
		if api.ErrorCode == http.StatusUnauthorized || api.ErrorCode == http.StatusNotFound {
			return &transport.IdentityInvalidError{Reason: api.Description}
		}
		return fmt.Errorf("telegram: %s failed: %s (code %d)", method, api.Description, api.ErrorCode)
	}
	if result != nil && len(api.Result) > 0 {
		if err := json.Unmarshal(api.Result, result); err != nil {
			return fmt.Errorf("telegram: decode %s result: %w", method, err)
		}
	}
	return nil
}

// sendPhoto needs multipart upload; everything else rides on JSON.
func (o *Opener) sendPhoto(ctx context.Context, token string, chatID int64, caption string, photo []byte, name string, markup any) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	_ = w.WriteField("chat_id", fmt.Sprintf("%d", chatID))
	if caption != "" {
		_ = w.WriteField("caption", caption)
	}
	if markup != nil {
		data, err := json.Marshal(markup)
		if err != nil {
			return fmt.Errorf("telegram: encode reply markup: %w", err)
		}
		_ = w.WriteField("reply_markup", string(data))
	}
	if name == "" {
		name = "photo.png"
	}
	part, err := w.CreateFormFile("photo", name)
	if err != nil {
		return fmt.Errorf("telegram: build photo part: %w", err)
	}
	if _, err := part.Write(photo); err != nil {
		return fmt.Errorf("telegram: write photo part: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("telegram: finish photo upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.methodURL(token, "sendPhoto"), &buf)
	if err != nil {
		return fmt.Errorf("telegram: build sendPhoto request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return o.do(req, "sendPhoto", nil)
}

func toMessage(m *apiMessage) *transport.Message {
	if m == nil {
		return nil
	}
	out := &transport.Message{
		ID:     m.MessageID,
		ChatID: m.Chat.ID,
		Text:   m.Text,
	}
	if out.Text == "" {
		out.Text = m.Caption
	}
	if m.From != nil {
		out.From = &transport.User{ID: m.From.ID, Username: m.From.Username}
	}
	if len(m.Photo) > 0 {
		// Largest size is last.
		out.PhotoID = m.Photo[len(m.Photo)-1].FileID
	}
	return out
}

func toEvent(u apiUpdate) *transport.Event {
	ev := &transport.Event{Seq: u.UpdateID, Timestamp: time.Now().UTC()}
	switch {
	case u.Message != nil:
		ev.Message = toMessage(u.Message)
	case u.CallbackQuery != nil:
		ev.Callback = &transport.Callback{
			ID:      u.CallbackQuery.ID,
			Data:    u.CallbackQuery.Data,
			Message: toMessage(u.CallbackQuery.Message),
		}
		if u.CallbackQuery.From != nil {
			ev.Callback.From = &transport.User{ID: u.CallbackQuery.From.ID, Username: u.CallbackQuery.From.Username}
		}
	}
	return ev
}
