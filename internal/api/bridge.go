package api

import (
	"context"
	"fmt"
	"sync"

	"github.com/lucsky/cuid"
	"github.com/rs/zerolog"

	"github.com/bbernstein/wifi-connect/internal/services/orchestrator"
)

// Bridge carries HTTP requests into the orchestrator's command channel and
// hands back the matching reply. Run must be running for replies to be
// delivered; it drains the response channel continuously so the orchestrator
// never waits on a client that went away.
type Bridge struct {
	commands  chan<- orchestrator.Command
	responses <-chan orchestrator.Response
	log       zerolog.Logger

	mu      sync.Mutex
	pending map[string]chan orchestrator.Response
}

// NewBridge creates a bridge over the orchestrator's channels.
func NewBridge(commands chan<- orchestrator.Command, responses <-chan orchestrator.Response, log zerolog.Logger) *Bridge {
	return &Bridge{
		commands:  commands,
		responses: responses,
		log:       log,
		pending:   make(map[string]chan orchestrator.Response),
	}
}

// Run routes replies to their waiting requests until ctx is done. Replies
// nobody waits for any more are dropped.
func (b *Bridge) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case resp := <-b.responses:
			b.deliver(resp)
		}
	}
}

func (b *Bridge) deliver(resp orchestrator.Response) {
	b.mu.Lock()
	waiter, ok := b.pending[resp.ID()]
	delete(b.pending, resp.ID())
	b.mu.Unlock()

	if !ok {
		b.log.Warn().Str("request_id", resp.ID()).Msg("Dropping reply for abandoned request")
		return
	}
	waiter <- resp
}

// Send queues a command that has no reply.
func (b *Bridge) Send(ctx context.Context, cmd orchestrator.Command) error {
	select {
	case b.commands <- cmd:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("sending command: %w", ctx.Err())
	}
}

// Request queues the command built for a fresh request id and waits for the
// reply carrying that id.
func (b *Bridge) Request(ctx context.Context, build func(id string) orchestrator.Command) (orchestrator.Response, error) {
	id := cuid.New()
	waiter := make(chan orchestrator.Response, 1)

	b.mu.Lock()
	b.pending[id] = waiter
	b.mu.Unlock()
	defer b.forget(id)

	if err := b.Send(ctx, build(id)); err != nil {
		return nil, err
	}

	select {
	case resp := <-waiter:
		return resp, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for reply: %w", ctx.Err())
	}
}

func (b *Bridge) forget(id string) {
	b.mu.Lock()
	delete(b.pending, id)
	b.mu.Unlock()
}

// Pending returns the number of requests waiting for a reply.
func (b *Bridge) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
