package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopmux/shopmux/internal/transport"
)

// Handler processes one resolved event.
type Handler func(ctx context.Context, ec *EventContext) error

// Predicate decides whether a route claims an event.
type Predicate func(ec *EventContext) bool

type route struct {
	pred    Predicate
	handler Handler
}

// Router is one named group of routes. Routers fire in registration order;
// within a router, routes fire in registration order. First match wins
// across the whole tree.
type Router struct {
	name   string
	routes []route
}

// Handle registers a route.
func (r *Router) Handle(pred Predicate, h Handler) {
	r.routes = append(r.routes, route{pred: pred, handler: h})
}

// Tree is the shared dispatch tree. Every surface (master and each tenant
// worker) pumps events through the same tree; resolution tells handlers
// which storefront they are acting on.
type Tree struct {
	resolver *Resolver
	forms    *FormStore
	routers  []*Router
	logger   *slog.Logger
}

// NewTree builds an empty tree around the given resolver.
func NewTree(resolver *Resolver, logger *slog.Logger) *Tree {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tree{
		resolver: resolver,
		forms:    NewFormStore(),
		logger:   logger,
	}
}

// Router appends a named router. Registration order is the precedence
// order; there is no way to reorder after the fact.
func (t *Tree) Router(name string) *Router {
	r := &Router{name: name}
	t.routers = append(t.routers, r)
	return r
}

// Forms exposes the shared conversation-state store.
func (t *Tree) Forms() *FormStore { return t.forms }

// Dispatch resolves tenant context for one event and hands it to the first
// matching route. Resolution always runs first; no route sees an event
// that skipped it. Unmatched events are dropped silently.
func (t *Tree) Dispatch(ctx context.Context, surfaceToken string, sess transport.Session, ev *transport.Event) error {
	ec := &EventContext{
		Event:   ev,
		Session: sess,
		Surface: sess.Identity(),
		User:    ev.From(),
		forms:   t.forms,
	}
	if err := t.resolver.Resolve(ctx, surfaceToken, ec); err != nil {
		return fmt.Errorf("resolve tenant: %w", err)
	}
	for _, r := range t.routers {
		for _, rt := range r.routes {
			if rt.pred(ec) {
				if err := rt.handler(ctx, ec); err != nil {
					return fmt.Errorf("%s handler: %w", r.name, err)
				}
				return nil
			}
		}
	}
	t.logger.Debug("event unmatched", "surface", ec.Surface.Username, "seq", ev.Seq)
	return nil
}

// ---------------------------------------------------------------------------
// Predicates
// ---------------------------------------------------------------------------

// Command matches "/name" and "/name arg..." messages.
func Command(name string) Predicate {
	return func(ec *EventContext) bool {
		text := ec.Text()
		if !strings.HasPrefix(text, "/") {
			return false
		}
		head := strings.Fields(text)[0]
		// Strip the @botname suffix used in group chats.
		if i := strings.IndexByte(head, '@'); i > 0 {
			head = head[:i]
		}
		return head == "/"+name
	}
}

// CommandArgs returns the arguments after the command word.
func CommandArgs(text string) []string {
	fields := strings.Fields(text)
	if len(fields) <= 1 {
		return nil
	}
	return fields[1:]
}

// CallbackPrefix matches callback events whose data starts with prefix.
func CallbackPrefix(prefix string) Predicate {
	return func(ec *EventContext) bool {
		return ec.Event.Callback != nil && strings.HasPrefix(ec.Event.Callback.Data, prefix)
	}
}

// CallbackArg returns callback data with prefix removed.
func CallbackArg(ec *EventContext, prefix string) string {
	if ec.Event.Callback == nil {
		return ""
	}
	return strings.TrimPrefix(ec.Event.Callback.Data, prefix)
}

// TextEquals matches an exact message text, for reply-keyboard buttons.
func TextEquals(text string) Predicate {
	return func(ec *EventContext) bool { return ec.Text() == text }
}

// FormStep matches message events while the user's conversation sits at the
// named step.
func FormStep(name string) Predicate {
	return func(ec *EventContext) bool {
		if ec.Event.Message == nil {
			return false
		}
		st := ec.Form()
		return st != nil && st.Name == name
	}
}

// FormPrefix matches message events while the conversation step starts with
// prefix, for multi-step flows sharing one handler.
func FormPrefix(prefix string) Predicate {
	return func(ec *EventContext) bool {
		if ec.Event.Message == nil {
			return false
		}
		st := ec.Form()
		return st != nil && strings.HasPrefix(st.Name, prefix)
	}
}

// All combines predicates conjunctively.
func All(preds ...Predicate) Predicate {
	return func(ec *EventContext) bool {
		for _, p := range preds {
			if !p(ec) {
				return false
			}
		}
		return true
	}
}

// Owner matches events from the storefront owner.
func Owner() Predicate {
	return func(ec *EventContext) bool { return ec.Resolved && ec.IsOwner }
}

// Customer matches events from non-owners, i.e. shoppers on a worker
// surface.
func Customer() Predicate {
	return func(ec *EventContext) bool { return ec.Resolved && !ec.IsOwner }
}
