// Package dispatch routes inbound transport events through tenant
// resolution and an ordered handler tree shared by every surface.
package dispatch

import (
	"context"

	"github.com/shopmux/shopmux/internal/store"
	"github.com/shopmux/shopmux/internal/transport"
)

// EventContext carries one inbound event plus everything resolution
// attached to it. Handlers receive it fully populated; they never perform
// tenant lookups themselves.
type EventContext struct {
	Event   *transport.Event
	Session transport.Session
	Surface transport.Identity

	// User is the acting user, nil for technical events.
	User *transport.User

	// Resolved is false when the event carried no acting user and tenant
	// context could not be attached.
	Resolved bool
	// Master is true when the event arrived on the master surface rather
	// than a tenant worker.
	Master bool
	// IsOwner is true when the acting user owns the storefront this surface
	// serves. On the master surface every user browses their own context,
	// so it is always true there.
	IsOwner bool
	// TenantID is the storefront owner's id.
	TenantID int64
	// Profile is the storefront owner's profile. Nil on the master surface
	// for users who never registered.
	Profile *store.Profile

	forms *FormStore
}

// ChatID returns the conversation the event belongs to.
func (ec *EventContext) ChatID() int64 { return ec.Event.ChatID() }

// Text returns the inbound message text, "" for callbacks.
func (ec *EventContext) Text() string { return ec.Event.Text() }

// Reply sends plain text back to the event's chat.
func (ec *EventContext) Reply(ctx context.Context, text string) error {
	return ec.Session.Send(ctx, &transport.Outbound{ChatID: ec.ChatID(), Text: text})
}

// ReplyButtons sends text with an inline keyboard.
func (ec *EventContext) ReplyButtons(ctx context.Context, text string, buttons [][]transport.Button) error {
	return ec.Session.Send(ctx, &transport.Outbound{ChatID: ec.ChatID(), Text: text, Buttons: buttons})
}

// Edit rewrites the message the event's callback was attached to.
func (ec *EventContext) Edit(ctx context.Context, text string, buttons [][]transport.Button) error {
	var msgID int64
	if ec.Event.Callback != nil && ec.Event.Callback.Message != nil {
		msgID = ec.Event.Callback.Message.ID
	}
	return ec.Session.Send(ctx, &transport.Outbound{
		ChatID:        ec.ChatID(),
		Text:          text,
		Buttons:       buttons,
		EditMessageID: msgID,
	})
}

// Ack answers the event's callback so the client stops its spinner.
func (ec *EventContext) Ack(ctx context.Context, text string) error {
	if ec.Event.Callback == nil {
		return nil
	}
	return ec.Session.Send(ctx, &transport.Outbound{CallbackID: ec.Event.Callback.ID, Text: text})
}

// SendTo sends plain text to an arbitrary chat on this surface, e.g. a
// seller notification triggered by a buyer's event.
func (ec *EventContext) SendTo(ctx context.Context, chatID int64, text string) error {
	return ec.Session.Send(ctx, &transport.Outbound{ChatID: chatID, Text: text})
}

// SendButtonsTo sends a keyboard message to an arbitrary chat.
func (ec *EventContext) SendButtonsTo(ctx context.Context, chatID int64, text string, buttons [][]transport.Button) error {
	return ec.Session.Send(ctx, &transport.Outbound{ChatID: chatID, Text: text, Buttons: buttons})
}

// SendPhoto sends an image with caption to the event's chat.
func (ec *EventContext) SendPhoto(ctx context.Context, photo []byte, name, caption string) error {
	return ec.Session.Send(ctx, &transport.Outbound{ChatID: ec.ChatID(), Photo: photo, PhotoName: name, Text: caption})
}

func (ec *EventContext) formKey() (FormKey, bool) {
	if ec.User == nil {
		return FormKey{}, false
	}
	return FormKey{Surface: ec.Surface.ID, User: ec.User.ID}, true
}

// Form returns the active conversation state for this user on this
// surface, or nil when no form is in progress.
func (ec *EventContext) Form() *FormState {
	key, ok := ec.formKey()
	if !ok {
		return nil
	}
	return ec.forms.Get(key)
}

// StartForm begins a named conversation state, replacing any previous one.
func (ec *EventContext) StartForm(name string) *FormState {
	key, ok := ec.formKey()
	if !ok {
		return nil
	}
	return ec.forms.Start(key, name)
}

// ClearForm ends the active conversation state, if any.
func (ec *EventContext) ClearForm() {
	if key, ok := ec.formKey(); ok {
		ec.forms.Clear(key)
	}
}
