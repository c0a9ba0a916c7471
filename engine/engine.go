// Package engine coordinates turn processing: it consumes raw transport
// events, normalizes them, and dispatches each turn on a per-conversation-key
// lane. Turns for different keys run in parallel; turns for the same key are
// processed strictly in arrival order, so session history can never
// interleave. A failure in one lane never affects other keys.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/haystackbot/haystack/core"
	"github.com/haystackbot/haystack/logging"
	"github.com/haystackbot/haystack/normalize"
	"github.com/haystackbot/haystack/router"
)

// Options configure an Engine.
type Options struct {
	// SweepInterval is how often expired sessions are evicted.
	SweepInterval time.Duration
	// Logger receives dispatch diagnostics.
	Logger logging.Logger
}

// lane is the FIFO queue for one conversation key. Queue membership and the
// active flag are guarded by the engine mutex; exactly one drain goroutine
// runs per active lane.
type lane struct {
	queue  []core.InboundTurn
	active bool
}

// Engine is the dispatch core. Public methods are safe for concurrent use.
type Engine struct {
	normalizer *normalize.Normalizer
	store      core.SessionStore
	router     *router.Router
	sink       core.Sink
	logger     logging.Logger

	sweepInterval time.Duration

	mu    sync.Mutex
	ctx   context.Context
	lanes map[string]*lane
	wg    sync.WaitGroup
}

// New constructs an Engine with optional overrides.
func New(normalizer *normalize.Normalizer, store core.SessionStore, r *router.Router, sink core.Sink, optFns ...func(o *Options)) *Engine {
	opts := Options{
		SweepInterval: 5 * time.Minute,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Engine{
		normalizer:    normalizer,
		store:         store,
		router:        r,
		sink:          sink,
		logger:        opts.Logger,
		sweepInterval: opts.SweepInterval,
		ctx:           context.Background(),
		lanes:         make(map[string]*lane),
	}
}

// Run consumes the transport source until ctx is done, running the periodic
// eviction sweep alongside. It returns after in-flight lanes drain.
func (e *Engine) Run(ctx context.Context, source core.Source) error {
	e.mu.Lock()
	e.ctx = ctx
	e.mu.Unlock()

	ticker := time.NewTicker(e.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.Wait()
			return ctx.Err()
		case <-ticker.C:
			if evicted := e.store.EvictExpired(time.Now()); evicted > 0 {
				e.logger.Debug("evicted idle sessions", "count", evicted)
			}
		case ev, ok := <-source.Events():
			if !ok {
				e.Wait()
				return nil
			}
			e.Submit(ev)
		}
	}
}

// Submit normalizes and enqueues one raw event. It never blocks the caller:
// dropped events return immediately and accepted turns are queued on their
// key's lane for asynchronous processing.
func (e *Engine) Submit(ev core.RawEvent) {
	turn, ok := e.normalizer.Normalize(ev)
	if !ok {
		e.logger.Debug("event dropped by normalizer", "event_id", ev.ID, "type", ev.Type)
		return
	}
	turn.Seq = e.store.NextSeq(turn.ConversationKey)

	e.mu.Lock()
	l, ok := e.lanes[turn.ConversationKey]
	if !ok {
		l = &lane{}
		e.lanes[turn.ConversationKey] = l
	}
	l.queue = append(l.queue, turn)
	if !l.active {
		l.active = true
		e.wg.Add(1)
		go e.drain(turn.ConversationKey, l)
	}
	e.mu.Unlock()
}

// Wait blocks until all currently active lanes have drained. Intended for
// shutdown and tests.
func (e *Engine) Wait() { e.wg.Wait() }

// drain processes a lane's queue in FIFO order, exiting when it empties. The
// lane entry is removed on exit so an idle conversation holds no resources.
func (e *Engine) drain(key string, l *lane) {
	defer e.wg.Done()
	for {
		e.mu.Lock()
		if len(l.queue) == 0 {
			l.active = false
			delete(e.lanes, key)
			e.mu.Unlock()
			return
		}
		turn := l.queue[0]
		l.queue = l.queue[1:]
		ctx := e.ctx
		e.mu.Unlock()

		e.process(ctx, turn)
	}
}

// process runs the full pipeline for one turn. All failure modes end in a
// well-formed reply or a logged drop; a panic is contained to this turn.
func (e *Engine) process(ctx context.Context, turn core.InboundTurn) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("panic processing turn", "key", turn.ConversationKey, "seq", turn.Seq, "panic", r)
		}
	}()

	session := e.store.GetOrCreate(turn.ConversationKey)

	// A new top-level turn ends capability continuity; only threaded
	// follow-ups may stick to the previously selected capability.
	if !turn.IsThreadReply {
		e.store.ClearCapability(turn.ConversationKey)
	}

	desc := e.router.Route(ctx, turn, session)
	e.store.SetCapability(turn.ConversationKey, desc.Name)
	e.logger.Info("dispatching turn",
		"key", turn.ConversationKey,
		"seq", turn.Seq,
		"capability", desc.Name)

	out := desc.Executor.Execute(ctx, turn, session)

	if err := e.sink.Send(ctx, out); err != nil {
		// Delivery is fire-and-forget: log and keep the exchange in history.
		e.logger.Warn("reply delivery failed", "key", turn.ConversationKey, "error", err)
	}

	if err := e.store.Append(turn.ConversationKey, turn, out); err != nil {
		e.logger.Debug("exchange not recorded", "key", turn.ConversationKey, "seq", turn.Seq, "reason", err)
	}
}
