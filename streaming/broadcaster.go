// Package streaming implements Broadcaster, a supervisor which bridges a
// single unreliable server-initiated stream (canonically a gRPC server
// stream) to any number of local consumers. It repeatedly opens a fresh
// stream, fans items out through a broadcast.Channel, and on stream
// termination consults a retry.Strategy to decide whether to reconnect after
// a delay or give up and close the channel.
package streaming

import (
	"context"
	"io"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"go.streambridge.dev/core/broadcast"
	"go.streambridge.dev/core/metrics"
	"go.streambridge.dev/core/retry"
)

// Stream is a lazy sequence of items, as produced by one connection attempt.
// Recv returns io.EOF when the stream is cleanly exhausted, and any other
// error on a transport-level failure. gRPC client streams satisfy Stream
// directly.
type Stream[In any] interface {
	Recv() (In, error)
}

// OpenFunc opens a fresh Stream. It's invoked once per connection attempt,
// with a Context which is cancelled when the Broadcaster stops. An OpenFunc
// error is treated exactly like a Stream which fails on its first Recv.
type OpenFunc[In any] func(ctx context.Context) (Stream[In], error)

// Broadcaster supervises a reconnecting stream pump. At most one pump
// goroutine is live at any time. Items received from the current Stream are
// transformed and forwarded to every receiver of the current
// broadcast.Channel; the Channel is replaced wholesale each time the pump is
// (re)started, so receivers of a prior incarnation observe a clean stream
// end rather than items of the new one.
type Broadcaster[In, Out any] struct {
	name      string
	open      OpenFunc[In]
	transform func(In) Out
	strategy  retry.Strategy

	mu      sync.Mutex
	channel *broadcast.Channel[Out]
	cancel  context.CancelFunc
	stopped chan struct{} // Closed on pump exit. Nil before the first Start.
}

// New returns a started Broadcaster which opens streams via |open| and
// applies |transform| to each received item. |name| identifies the stream in
// logs and metrics. A nil |strategy| defaults to unlimited retry.LinearBackoff;
// a non-nil one is copied, so the argument may be shared as a template across
// many Broadcasters without cross-contaminating attempt counters.
func New[In, Out any](
	name string,
	open OpenFunc[In],
	transform func(In) Out,
	strategy retry.Strategy,
) *Broadcaster[In, Out] {
	if strategy == nil {
		strategy = retry.NewLinearBackoff()
	} else {
		strategy = strategy.Copy()
	}
	var b = &Broadcaster[In, Out]{
		name:      name,
		open:      open,
		transform: transform,
		strategy:  strategy,
	}
	b.Start()
	return b
}

// Start the pump if it isn't already running, resetting the retry Strategy
// and installing a new broadcast Channel. Start is idempotent: if a pump is
// live, it's a no-op.
func (b *Broadcaster[In, Out]) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.startLocked()
}

func (b *Broadcaster[In, Out]) startLocked() {
	if b.pumpLiveLocked() {
		return
	}
	if b.cancel != nil {
		b.cancel() // Release the context of the prior, exited pump.
	}
	b.strategy.Reset()
	b.channel = broadcast.New[Out]("broadcaster-" + b.name)

	var ctx, cancel = context.WithCancel(context.Background())
	var stopped = make(chan struct{})
	b.cancel, b.stopped = cancel, stopped

	go b.pump(ctx, b.channel, stopped)
}

func (b *Broadcaster[In, Out]) pumpLiveLocked() bool {
	if b.stopped == nil {
		return false
	}
	select {
	case <-b.stopped:
		return false
	default:
		return true
	}
}

// NewReceiver returns a receiver of the current stream with the given buffer
// capacity (non-positive capacities use broadcast.DefaultCapacity). If the
// stream has stopped, either by Stop or because the retry budget was
// exhausted, NewReceiver first restarts it: it is explicitly not a pure
// accessor. The returned receiver observes all items broadcast after its
// creation, in stream order, until it or the stream's channel is closed.
func (b *Broadcaster[In, Out]) NewReceiver(capacity int) *broadcast.Receiver[Out] {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.channel.IsClosed() {
		log.WithField("stream", b.name).Warn("stream has stopped, starting a new one")
		b.startLocked()
	}
	return b.channel.NewReceiver(capacity)
}

// Stop cancels the pump, awaits its exit, and closes the channel. Receivers
// drain items buffered before the Stop and then observe a clean stream end.
// Stop is idempotent, and a no-op if the pump was never started. The
// Broadcaster may be used again afterward via Start or NewReceiver.
//
// Callers are responsible for invoking Stop when done with a Broadcaster,
// exactly as they would Close a held resource: an abandoned Broadcaster
// otherwise re-dials its stream until its Strategy is exhausted.
func (b *Broadcaster[In, Out]) Stop() {
	b.mu.Lock()
	if b.stopped == nil {
		b.mu.Unlock()
		return
	}
	var cancel, stopped, channel = b.cancel, b.stopped, b.channel
	b.mu.Unlock()

	cancel()
	<-stopped
	// The pump closes the channel itself only on the strategy-exhausted
	// path. On the cancellation path the close happens here, after the pump
	// has fully exited, so a stop can't race a concurrently-deciding retry.
	channel.Close()
}

// pump runs connection attempts until the Strategy is exhausted or |ctx| is
// cancelled. It is the only goroutine which sends into |channel|.
func (b *Broadcaster[In, Out]) pump(ctx context.Context, channel *broadcast.Channel[Out], stopped chan struct{}) {
	defer close(stopped)

	var sender = channel.NewSender()
	for {
		log.WithField("stream", b.name).Info("starting to stream")
		metrics.StreamStartsTotal.WithLabelValues(b.name).Inc()

		var streamErr = b.runOnce(ctx, sender)

		if ctx.Err() != nil {
			// Cancelled by Stop. Stop owns closing the channel.
			return
		}

		var fields = log.Fields{"stream": b.name}
		if streamErr != nil {
			fields["err"] = streamErr
		} else {
			fields["err"] = "stream exhausted"
		}

		var interval = b.strategy.NextInterval()
		if interval == retry.Stop {
			fields["progress"] = b.strategy.Progress()
			log.WithFields(fields).Error("connection ended, retry limit exceeded, giving up")
			metrics.StreamGiveUpsTotal.WithLabelValues(b.name).Inc()
			channel.Close()
			return
		}
		fields["progress"] = b.strategy.Progress()
		fields["delay"] = interval
		log.WithFields(fields).Warn("connection ended, retrying")
		metrics.StreamRetriesTotal.WithLabelValues(b.name).Inc()

		var timer = time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// runOnce drives a single connection attempt: open a Stream, then forward
// transformed items until it ends. A nil return means clean exhaustion;
// errors caused by cancellation are disambiguated by the caller via ctx.Err.
func (b *Broadcaster[In, Out]) runOnce(ctx context.Context, sender *broadcast.Sender[Out]) error {
	var stream, err = b.open(ctx)
	if err != nil {
		return err
	}
	for {
		var in In
		if in, err = stream.Recv(); err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}
		if err = sender.Send(ctx, b.transform(in)); err != nil {
			return err
		}
		metrics.StreamItemsTotal.WithLabelValues(b.name).Inc()
	}
}
