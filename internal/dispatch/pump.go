package dispatch

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shopmux/shopmux/internal/transport"
)

// Pump drives one session: receive, dispatch, repeat. Events on a surface
// are processed strictly in order; concurrency exists only across surfaces.
type Pump struct {
	tree   *Tree
	sess   transport.Session
	token  string
	logger *slog.Logger
}

// NewPump builds a pump for one open session. token is the surface token
// the session was opened with; resolution keys off it.
func NewPump(tree *Tree, sess transport.Session, token string, logger *slog.Logger) *Pump {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pump{tree: tree, sess: sess, token: token, logger: logger}
}

// Run pumps until ctx is cancelled or the session closes. A handler error
// is logged and the loop continues: one bad event never takes the surface
// down. Returns nil on clean shutdown.
func (p *Pump) Run(ctx context.Context) error {
	surface := p.sess.Identity().Username
	// Cancellation is observed at the receive boundary only: a handler
	// already in flight keeps an uncancelled context and runs to completion.
	dispatchCtx := context.WithoutCancel(ctx)
	for {
		ev, err := p.sess.ReceiveNext(ctx)
		if err != nil {
			if errors.Is(err, transport.ErrClosed) || errors.Is(err, context.Canceled) {
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := p.tree.Dispatch(dispatchCtx, p.token, p.sess, ev); err != nil {
			p.logger.Error("dispatch failed", "surface", surface, "seq", ev.Seq, "error", err)
		}
	}
}
