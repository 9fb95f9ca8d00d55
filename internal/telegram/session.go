package telegram

import (
	"context"
	"errors"
	"sync"

	"github.com/shopmux/shopmux/internal/transport"
)

// Session is one open long-poll listener on a bot token. It implements
// transport.Session. ReceiveNext is meant to be driven by a single
// goroutine; Send and Close are safe from any.
type Session struct {
	opener *Opener
	token  string
	id     transport.Identity

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once

	// Poll state, owned by the ReceiveNext caller.
	offset  int64
	pending []apiUpdate
}

// Identity returns the bot identity the session was opened for.
func (s *Session) Identity() transport.Identity { return s.id }

// Close releases the session. Any blocked ReceiveNext unblocks with
// ErrClosed.
func (s *Session) Close() error {
	s.closeOnce.Do(s.cancel)
	return nil
}

// DiscardPending drops the platform-side backlog so a fresh session never
// replays events queued while no worker was listening.
func (s *Session) DiscardPending(ctx context.Context) error {
	ctx, cancel := s.bind(ctx)
	defer cancel()
	params := map[string]any{"drop_pending_updates": true}
	if err := s.opener.call(ctx, s.token, "deleteWebhook", params, nil); err != nil {
		return s.closedOr(err)
	}
	s.pending = nil
	return nil
}

// ReceiveNext blocks until the next event arrives, ctx is cancelled, or the
// session is closed.
func (s *Session) ReceiveNext(ctx context.Context) (*transport.Event, error) {
	for {
		if len(s.pending) > 0 {
			u := s.pending[0]
			s.pending = s.pending[1:]
			return toEvent(u), nil
		}
		if err := s.poll(ctx); err != nil {
			return nil, err
		}
	}
}

func (s *Session) poll(ctx context.Context) error {
	ctx, cancel := s.bind(ctx)
	defer cancel()

	params := map[string]any{
		"offset":          s.offset,
		"timeout":         int(s.opener.pollTimeout.Seconds()),
		"allowed_updates": []string{"message", "callback_query"},
	}
	var updates []apiUpdate
	if err := s.opener.call(ctx, s.token, "getUpdates", params, &updates); err != nil {
		return s.closedOr(err)
	}
	for _, u := range updates {
		if u.UpdateID >= s.offset {
			s.offset = u.UpdateID + 1
		}
	}
	s.pending = append(s.pending, updates...)
	return nil
}

// Send delivers one outbound message. The Outbound shape picks the method:
// callback ack, photo upload, edit, or plain send.
func (s *Session) Send(ctx context.Context, msg *transport.Outbound) error {
	ctx, cancel := s.bind(ctx)
	defer cancel()

	switch {
	case msg.CallbackID != "":
		params := map[string]any{"callback_query_id": msg.CallbackID}
		if msg.Text != "" {
			params["text"] = msg.Text
		}
		if msg.CallbackAlert {
			params["show_alert"] = true
		}
		return s.closedOr(s.opener.call(ctx, s.token, "answerCallbackQuery", params, nil))

	case len(msg.Photo) > 0:
		return s.closedOr(s.opener.sendPhoto(ctx, s.token, msg.ChatID, msg.Text, msg.Photo, msg.PhotoName, markupFor(msg)))

	case msg.EditMessageID != 0:
		params := map[string]any{
			"chat_id":    msg.ChatID,
			"message_id": msg.EditMessageID,
			"text":       msg.Text,
		}
		if m := markupFor(msg); m != nil {
			params["reply_markup"] = m
		}
		return s.closedOr(s.opener.call(ctx, s.token, "editMessageText", params, nil))

	default:
		params := map[string]any{
			"chat_id": msg.ChatID,
			"text":    msg.Text,
		}
		if m := markupFor(msg); m != nil {
			params["reply_markup"] = m
		}
		return s.closedOr(s.opener.call(ctx, s.token, "sendMessage", params, nil))
	}
}

func markupFor(msg *transport.Outbound) any {
	if len(msg.Buttons) > 0 {
		rows := make([][]inlineButton, 0, len(msg.Buttons))
		for _, row := range msg.Buttons {
			r := make([]inlineButton, 0, len(row))
			for _, b := range row {
				r = append(r, inlineButton{Text: b.Text, CallbackData: b.Data, URL: b.URL})
			}
			rows = append(rows, r)
		}
		return inlineMarkup{InlineKeyboard: rows}
	}
	if len(msg.ReplyButtons) > 0 {
		rows := make([][]replyButton, 0, len(msg.ReplyButtons))
		for _, row := range msg.ReplyButtons {
			r := make([]replyButton, 0, len(row))
			for _, text := range row {
				r = append(r, replyButton{Text: text})
			}
			rows = append(rows, r)
		}
		return replyMarkup{Keyboard: rows, ResizeKeyboard: true}
	}
	return nil
}

// bind derives a context cancelled by either the caller or Close.
func (s *Session) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	return ctx, func() { stop(); cancel() }
}

// closedOr maps post-Close context errors onto ErrClosed so callers see a
// clean shutdown instead of a spurious cancellation.
func (s *Session) closedOr(err error) error {
	if err == nil {
		return nil
	}
	if s.ctx.Err() != nil && isCtxWrapped(err) {
		return transport.ErrClosed
	}
	return err
}

func isCtxWrapped(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
