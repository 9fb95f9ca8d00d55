// Package transport defines the contract between the chat platform and the
// rest of shopmux. One identity token equals one addressable bot surface; a
// Session is the exclusive handle on that surface.
package transport

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Identity describes the bot behind a token, as reported by the platform.
type Identity struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

// User is the acting user behind an inbound event.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// Message is an inbound chat message.
type Message struct {
	ID      int64  `json:"message_id"`
	From    *User  `json:"from,omitempty"`
	ChatID  int64  `json:"chat_id"`
	Text    string `json:"text"`
	PhotoID string `json:"photo_id,omitempty"`
}

// Callback is an inline-button press.
type Callback struct {
	ID      string   `json:"id"`
	From    *User    `json:"from,omitempty"`
	Data    string   `json:"data"`
	Message *Message `json:"message,omitempty"`
}

// Event is one inbound transport event. Exactly one of Message or Callback is
// set for user events; both may be nil for technical events.
type Event struct {
	Seq       int64     `json:"seq"`
	Message   *Message  `json:"message,omitempty"`
	Callback  *Callback `json:"callback,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// From returns the acting user, or nil for technical events.
func (e *Event) From() *User {
	switch {
	case e.Message != nil:
		return e.Message.From
	case e.Callback != nil:
		return e.Callback.From
	default:
		return nil
	}
}

// ChatID returns the conversation the event belongs to, or 0.
func (e *Event) ChatID() int64 {
	switch {
	case e.Message != nil:
		return e.Message.ChatID
	case e.Callback != nil && e.Callback.Message != nil:
		return e.Callback.Message.ChatID
	default:
		return 0
	}
}

// Text returns the message text, or "" for non-message events.
func (e *Event) Text() string {
	if e.Message != nil {
		return e.Message.Text
	}
	return ""
}

// Button is one inline keyboard button. Exactly one of Data or URL is set.
type Button struct {
	Text string `json:"text"`
	Data string `json:"data,omitempty"`
	URL  string `json:"url,omitempty"`
}

// Outbound is a message from a handler to the platform. One struct with
// optional fields covers plain text, photo upload, message edits and
// callback acknowledgements.
type Outbound struct {
	ChatID        int64      `json:"chat_id"`
	Text          string     `json:"text"`
	Photo         []byte     `json:"-"`
	PhotoName     string     `json:"photo_name,omitempty"`
	Buttons       [][]Button `json:"buttons,omitempty"`
	ReplyButtons  [][]string `json:"reply_buttons,omitempty"`
	EditMessageID int64      `json:"edit_message_id,omitempty"`
	CallbackID    string     `json:"callback_id,omitempty"`
	CallbackAlert bool       `json:"callback_alert,omitempty"`
}

// Session is an open listener on one bot surface. Sessions are exclusively
// owned: only the component that opened a session may use or close it.
type Session interface {
	// Identity returns the bot identity the session was opened for.
	Identity() Identity
	// ReceiveNext blocks until the next event arrives, the session is
	// closed, or ctx is cancelled.
	ReceiveNext(ctx context.Context) (*Event, error)
	// Send delivers an outbound message on this surface.
	Send(ctx context.Context, msg *Outbound) error
	// DiscardPending drops any backlog queued on the platform side so a
	// freshly opened session never replays stale events.
	DiscardPending(ctx context.Context) error
	// Close releases the session. ReceiveNext unblocks with ErrClosed.
	Close() error
}

// Opener establishes sessions from identity tokens.
type Opener interface {
	Open(ctx context.Context, token string) (Session, error)
	// Validate checks a token without keeping a session open.
	Validate(ctx context.Context, token string) (Identity, error)
}

// Provisioner is optionally implemented by openers that can apply cosmetic
// profile defaults (command menu) to a freshly validated identity. Callers
// treat failures as best-effort.
type Provisioner interface {
	SetupIdentity(ctx context.Context, token string) error
}

// ErrClosed is returned by ReceiveNext after Close.
var ErrClosed = errors.New("transport: session closed")

// IdentityInvalidError reports a token the platform rejected. Distinct from
// transient transport faults so provisioning flows can tell the user the
// token itself is wrong.
type IdentityInvalidError struct {
	Reason string
}

func (e *IdentityInvalidError) Error() string {
	return fmt.Sprintf("transport: identity token rejected: %s", e.Reason)
}

// IsIdentityInvalid reports whether err wraps an IdentityInvalidError.
func IsIdentityInvalid(err error) bool {
	var iie *IdentityInvalidError
	return errors.As(err, &iie)
}
