package streaming

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"go.streambridge.dev/core/broadcast"
	"go.streambridge.dev/core/retry"
)

// gatedStream returns scripted items once released, and then a scripted
// terminal error (nil means clean io.EOF exhaustion). Recv observes stream
// context cancellation, as a gRPC client stream would.
type gatedStream struct {
	ctx   context.Context
	gate  chan struct{}
	items []int
	err   error
	pos   int
}

func (s *gatedStream) Recv() (int, error) {
	select {
	case <-s.gate:
	case <-s.ctx.Done():
		return 0, s.ctx.Err()
	}
	if s.pos < len(s.items) {
		s.pos++
		return s.items[s.pos-1], nil
	}
	if s.err != nil {
		return 0, s.err
	}
	return 0, io.EOF
}

// testProducer scripts successive connection attempts. Each attempt's gate is
// published on |gates|; the test releases it once its receivers are in place.
type testProducer struct {
	mu     sync.Mutex
	opens  int
	gates  chan chan struct{}
	script func(attempt int) ([]int, error)
}

func newTestProducer(script func(attempt int) ([]int, error)) *testProducer {
	return &testProducer{
		gates:  make(chan chan struct{}, 16),
		script: script,
	}
}

func (p *testProducer) open(ctx context.Context) (Stream[int], error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.opens++
	var items, err = p.script(p.opens)
	var gate = make(chan struct{})
	p.gates <- gate
	return &gatedStream{ctx: ctx, gate: gate, items: items, err: err}, nil
}

func (p *testProducer) release(t *testing.T) {
	select {
	case gate := <-p.gates:
		close(gate)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out awaiting stream open")
	}
}

func (p *testProducer) openCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opens
}

// scriptStrategy returns scripted intervals and then retry.Stop.
type scriptStrategy struct {
	mu        sync.Mutex
	intervals []time.Duration
	calls     int
}

func (s *scriptStrategy) Reset() {}

func (s *scriptStrategy) NextInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls > len(s.intervals) {
		return retry.Stop
	}
	return s.intervals[s.calls-1]
}

func (s *scriptStrategy) Progress() string { return fmt.Sprintf("attempt %d", s.callCount()) }

// Copy returns the receiver so tests can observe calls made by the Broadcaster.
func (s *scriptStrategy) Copy() retry.Strategy { return s }

func (s *scriptStrategy) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func transform(i int) string { return fmt.Sprintf("transformed_%d", i) }

func awaitPumpExit(t *testing.T, b *Broadcaster[int, string]) {
	b.mu.Lock()
	var stopped = b.stopped
	b.mu.Unlock()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out awaiting pump exit")
	}
}

func drain(t *testing.T, r *broadcast.Receiver[string]) []string {
	var ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var out []string
	for {
		var item, err = r.Recv(ctx)
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, item)
	}
}

func TestFanOutOfSuccessfulStream(t *testing.T) {
	var producer = newTestProducer(func(int) ([]int, error) {
		return []int{0, 1, 2, 3, 4}, nil // Clean exhaustion.
	})
	var b = New("fan-out", producer.open, transform, &scriptStrategy{})
	defer b.Stop()

	var r1, r2 = b.NewReceiver(10), b.NewReceiver(10)
	producer.release(t)
	awaitPumpExit(t, b)

	var expect = []string{
		"transformed_0",
		"transformed_1",
		"transformed_2",
		"transformed_3",
		"transformed_4",
	}
	require.Equal(t, expect, drain(t, r1))
	require.Equal(t, expect, drain(t, r2))
}

func TestExhaustedStrategyClosesChannel(t *testing.T) {
	var producer = newTestProducer(func(int) ([]int, error) {
		return nil, errors.New("connection refused")
	})
	var strategy = &scriptStrategy{} // Stop on first consultation.
	var b = New("exhausted", producer.open, transform, strategy)
	defer b.Stop()

	var r = b.NewReceiver(1)
	producer.release(t)
	awaitPumpExit(t, b)

	require.Empty(t, drain(t, r))
	require.Equal(t, 1, producer.openCount())
	require.Equal(t, 1, strategy.callCount())

	b.mu.Lock()
	require.True(t, b.channel.IsClosed())
	b.mu.Unlock()
}

func TestImmediateRetryThenGiveUp(t *testing.T) {
	var hook = test.NewGlobal()
	defer hook.Reset()

	var producer = newTestProducer(func(int) ([]int, error) {
		return nil, errors.New("boom")
	})
	// One zero-delay retry, then Stop.
	var strategy = &scriptStrategy{intervals: []time.Duration{0}}
	var b = New("retry-composition", producer.open, transform, strategy)
	defer b.Stop()

	var r = b.NewReceiver(1)
	producer.release(t)
	producer.release(t)
	awaitPumpExit(t, b)

	require.Empty(t, drain(t, r))
	require.Equal(t, 2, producer.openCount())
	require.Equal(t, 2, strategy.callCount())

	var starts, retries, giveUps int
	for _, e := range hook.AllEntries() {
		if e.Data["stream"] != "retry-composition" {
			continue
		}
		switch {
		case e.Message == "starting to stream":
			starts++
		case e.Message == "connection ended, retrying":
			require.Equal(t, log.WarnLevel, e.Level)
			require.Equal(t, time.Duration(0), e.Data["delay"])
			retries++
		case e.Message == "connection ended, retry limit exceeded, giving up":
			require.Equal(t, log.ErrorLevel, e.Level)
			giveUps++
		}
	}
	require.Equal(t, 2, starts)
	require.Equal(t, 1, retries)
	require.Equal(t, 1, giveUps)
}

func TestNewReceiverRestartsStoppedStream(t *testing.T) {
	var hook = test.NewGlobal()
	defer hook.Reset()

	var producer = newTestProducer(func(int) ([]int, error) {
		return []int{7}, errors.New("dropped")
	})
	var b = New("auto-restart", producer.open, transform, &scriptStrategy{})
	defer b.Stop()

	// First incarnation: one item, then the error exhausts the strategy.
	var r1 = b.NewReceiver(1)
	producer.release(t)
	awaitPumpExit(t, b)
	require.Equal(t, []string{"transformed_7"}, drain(t, r1))

	// NewReceiver against the closed channel restarts the whole pump.
	var r2 = b.NewReceiver(1)
	producer.release(t)
	awaitPumpExit(t, b)
	require.Equal(t, []string{"transformed_7"}, drain(t, r2))

	require.Equal(t, 2, producer.openCount())

	var restarts int
	for _, e := range hook.AllEntries() {
		if e.Data["stream"] == "auto-restart" && e.Message == "stream has stopped, starting a new one" {
			require.Equal(t, log.WarnLevel, e.Level)
			restarts++
		}
	}
	require.Equal(t, 1, restarts)

	// A receiver of the old incarnation stays terminated; it doesn't begin
	// observing items of the new channel.
	require.Empty(t, drain(t, r1))
}

func TestStrategyTemplateIsolation(t *testing.T) {
	var proto = &retry.LinearBackoff{Limit: 1} // Zero interval, one retry.

	var p1 = newTestProducer(func(int) ([]int, error) { return nil, errors.New("err1") })
	var p2 = newTestProducer(func(int) ([]int, error) { return nil, errors.New("err2") })

	var b1 = New("isolated-1", p1.open, transform, proto)
	var b2 = New("isolated-2", p2.open, transform, proto)
	defer b1.Stop()
	defer b2.Stop()

	// Each Broadcaster holds an independent copy: each gets its own initial
	// attempt plus one retry, regardless of the other's consumption.
	p1.release(t)
	p1.release(t)
	awaitPumpExit(t, b1)

	p2.release(t)
	p2.release(t)
	awaitPumpExit(t, b2)

	require.Equal(t, 2, p1.openCount())
	require.Equal(t, 2, p2.openCount())
}

func TestStartIsIdempotent(t *testing.T) {
	var producer = newTestProducer(func(int) ([]int, error) { return nil, nil })
	var b = New("idempotent-start", producer.open, transform, &scriptStrategy{})
	defer b.Stop()

	require.Eventually(t, func() bool { return producer.openCount() == 1 },
		5*time.Second, time.Millisecond)

	b.mu.Lock()
	var before = b.stopped
	b.mu.Unlock()

	b.Start() // Pump is live: no-op.

	b.mu.Lock()
	var after = b.stopped
	b.mu.Unlock()
	require.Equal(t, before, after)
	require.Equal(t, 1, producer.openCount())
}

func TestStopIsIdempotent(t *testing.T) {
	var producer = newTestProducer(func(int) ([]int, error) { return nil, nil })
	var b = New("idempotent-stop", producer.open, transform, &scriptStrategy{})

	b.Stop()
	b.Stop() // No-op.

	b.mu.Lock()
	require.True(t, b.channel.IsClosed())
	b.mu.Unlock()
}

func TestStopDuringRecvUnwindsCleanly(t *testing.T) {
	var producer = newTestProducer(func(int) ([]int, error) { return nil, nil })
	var strategy = &scriptStrategy{intervals: []time.Duration{time.Hour}}
	var b = New("stop-in-recv", producer.open, transform, strategy)

	var r = b.NewReceiver(1)
	// The stream's gate is never released: the pump is blocked in Recv.
	b.Stop()

	require.Empty(t, drain(t, r))
	// Cancellation doesn't consult the strategy.
	require.Equal(t, 0, strategy.callCount())
}

func TestStopDuringRetrySleep(t *testing.T) {
	var producer = newTestProducer(func(int) ([]int, error) {
		return nil, errors.New("flaky")
	})
	var strategy = &scriptStrategy{intervals: []time.Duration{time.Hour}}
	var b = New("stop-in-sleep", producer.open, transform, strategy)

	var r = b.NewReceiver(1)
	producer.release(t)

	// Await the pump's single strategy consultation, after which it sleeps.
	require.Eventually(t, func() bool { return strategy.callCount() == 1 },
		5*time.Second, time.Millisecond)

	b.Stop()

	require.Empty(t, drain(t, r))
	require.Equal(t, 1, producer.openCount())
	// The aborted sleep didn't trigger a further consultation.
	require.Equal(t, 1, strategy.callCount())

	b.mu.Lock()
	require.True(t, b.channel.IsClosed())
	b.mu.Unlock()
}

func TestNilStrategyDefaultsToLinearBackoff(t *testing.T) {
	var producer = newTestProducer(func(int) ([]int, error) { return nil, nil })
	var b = New("default-strategy", producer.open, transform, nil)
	defer b.Stop()

	var lb, ok = b.strategy.(*retry.LinearBackoff)
	require.True(t, ok)
	require.Equal(t, retry.DefaultInterval, lb.Interval)
	require.Zero(t, lb.Limit)
}
