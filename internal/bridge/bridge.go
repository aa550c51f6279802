// Package bridge implements the message bridge core.
//
// A Bridge owns the client registry, the history ring and the offline queue.
// All of them are touched only from the goroutine running Run: public methods
// hand a closure to that goroutine over an unbuffered channel and wait for it
// to finish. Transport adapters therefore never race with each other or with
// the maintenance tickers.
package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/scarmonit-creator/LLM-sub005/internal/history"
	"github.com/scarmonit-creator/LLM-sub005/internal/notify"
	"github.com/scarmonit-creator/LLM-sub005/internal/queue"
	"github.com/scarmonit-creator/LLM-sub005/internal/registry"
)

// Transport is the push side of a connected client
type Transport = registry.Transport

const (
	DefaultHeartbeatInterval   = 30 * time.Second
	DefaultCleanupInterval     = 60 * time.Second
	DefaultStaleThreshold      = 5 * time.Minute
	DefaultRegistrationHistory = 10
)

// Options configures a Bridge. Zero values take the package defaults.
type Options struct {
	MaxClients          int
	HistorySize         int
	QueueBatchSize      int
	MaxQueuedPerClient  int
	MaxQueuedTotal      int
	RegistrationHistory int
	HeartbeatInterval   time.Duration
	CleanupInterval     time.Duration
	StaleThreshold      time.Duration

	Logger zerolog.Logger
	Events notify.Publisher
	// Now overrides the clock, for tests
	Now func() time.Time
}

func (o *Options) setDefaults() {
	if o.RegistrationHistory <= 0 {
		o.RegistrationHistory = DefaultRegistrationHistory
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if o.CleanupInterval <= 0 {
		o.CleanupInterval = DefaultCleanupInterval
	}
	if o.StaleThreshold <= 0 {
		o.StaleThreshold = DefaultStaleThreshold
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

type nopPublisher struct{}

func (nopPublisher) Publish(notify.Event) {}

// Bridge is the message bridge core
type Bridge struct {
	opts   Options
	logger zerolog.Logger
	events notify.Publisher
	now    func() time.Time

	cmds     chan func()
	stopped  chan struct{}
	runOnce  sync.Once
	shutOnce sync.Once

	// owned by the Run goroutine
	clients *registry.Registry
	history *history.Ring
	queue   *queue.Offline
	started time.Time

	totalMessages    int64
	totalConnections int64
	totalErrors      int64
	droppedQueued    int64
}

// New creates a bridge. Call Run to start serving operations.
func New(opts Options) *Bridge {
	opts.setDefaults()

	events := opts.Events
	if events == nil {
		events = nopPublisher{}
	}

	return &Bridge{
		opts:    opts,
		logger:  opts.Logger.With().Str("component", "bridge").Logger(),
		events:  events,
		now:     opts.Now,
		cmds:    make(chan func()),
		stopped: make(chan struct{}),
		clients: registry.New(opts.MaxClients),
		history: history.NewRing(opts.HistorySize),
		queue:   queue.New(opts.QueueBatchSize, opts.MaxQueuedPerClient, opts.MaxQueuedTotal),
		started: opts.Now(),
	}
}

// Run serves operations and maintenance ticks until ctx is cancelled, then
// closes every client transport and clears all state. Run may be called once.
func (b *Bridge) Run(ctx context.Context) error {
	ran := false
	b.runOnce.Do(func() { ran = true })
	if !ran {
		return ErrStopped
	}

	heartbeat := time.NewTicker(b.opts.HeartbeatInterval)
	cleanup := time.NewTicker(b.opts.CleanupInterval)
	defer func() {
		heartbeat.Stop()
		cleanup.Stop()
		b.shutdown()
	}()

	b.logger.Info().
		Int("max_clients", b.clients.Max()).
		Int("history_size", b.history.Cap()).
		Dur("heartbeat_interval", b.opts.HeartbeatInterval).
		Dur("cleanup_interval", b.opts.CleanupInterval).
		Dur("stale_threshold", b.opts.StaleThreshold).
		Msg("bridge started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-b.cmds:
			fn()
		case <-heartbeat.C:
			b.checkHeartbeats()
		case <-cleanup.C:
			b.cleanupStale()
		}
	}
}

// Done is closed once the bridge has shut down
func (b *Bridge) Done() <-chan struct{} {
	return b.stopped
}

func (b *Bridge) shutdown() {
	b.shutOnce.Do(func() {
		for _, e := range b.clients.Snapshot() {
			if err := e.Transport.Close(); err != nil {
				b.logger.Debug().Err(err).Str("client_id", e.Meta.ID).Msg("close transport on shutdown")
			}
			b.events.Publish(notify.Event{Type: notify.EventClientDisconnected, ClientID: e.Meta.ID, Reason: ReasonShutdown})
		}
		clients := b.clients.Len()
		queued := b.queue.Total()

		b.clients.Reset()
		b.queue.Reset()
		b.history.Reset()
		close(b.stopped)

		b.logger.Info().
			Int("clients_closed", clients).
			Int("queued_discarded", queued).
			Msg("bridge stopped")
	})
}

// exec runs fn on the bridge goroutine and waits for it to return
func (b *Bridge) exec(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	cmd := func() {
		defer close(done)
		fn()
	}

	select {
	case b.cmds <- cmd:
	case <-b.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	<-done
	return nil
}

func (b *Bridge) newEnvelopeID() string {
	return ulid.Make().String()
}
