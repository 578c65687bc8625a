// stream-ticks demonstrates the streambridge wiring: a flaky synthetic tick
// stream is bridged through a streaming.Broadcaster to several concurrent
// consumers, reconnecting between failures per the configured retry policy.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	log "github.com/sirupsen/logrus"

	"go.streambridge.dev/core/broadcast"
	mbp "go.streambridge.dev/core/mainboilerplate"
	"go.streambridge.dev/core/retry"
	"go.streambridge.dev/core/streaming"
)

// Config is the top-level configuration object of stream-ticks.
var Config = new(struct {
	Ticks struct {
		Interval    time.Duration `long:"interval" env:"INTERVAL" default:"200ms" description:"Interval between produced ticks"`
		FailEvery   int           `long:"fail-every" env:"FAIL_EVERY" default:"5" description:"Fail the stream after this many ticks, forcing a reconnect"`
		Receivers   int           `long:"receivers" env:"RECEIVERS" default:"2" description:"Number of concurrent consumers"`
		RetryLimit  int           `long:"retry-limit" env:"RETRY_LIMIT" default:"0" description:"Number of reconnect attempts before giving up (0 is unlimited)"`
		RetryDelay  time.Duration `long:"retry-delay" env:"RETRY_DELAY" default:"1s" description:"Base delay between reconnect attempts"`
		RetryJitter time.Duration `long:"retry-jitter" env:"RETRY_JITTER" default:"250ms" description:"Random jitter added to each reconnect delay"`
	} `group:"Ticks" namespace:"ticks" env-namespace:"TICKS"`

	Log     mbp.LogConfig     `group:"Logging" namespace:"log" env-namespace:"LOG"`
	Metrics mbp.MetricsConfig `group:"Metrics" namespace:"metrics" env-namespace:"METRICS"`
})

type tick struct {
	Sequence int
	At       time.Time
}

// tickStream produces ticks until its per-connection budget is spent, then
// fails. Each opened stream mimics a server stream resuming from the
// producer's current position.
type tickStream struct {
	ctx      context.Context
	interval time.Duration
	remain   int
	next     *int
}

func (s *tickStream) Recv() (tick, error) {
	if s.remain == 0 {
		return tick{}, errors.New("tick stream dropped")
	}
	select {
	case <-s.ctx.Done():
		return tick{}, s.ctx.Err()
	case at := <-time.After(s.interval):
		s.remain--
		*s.next++
		return tick{Sequence: *s.next, At: at}, nil
	}
}

func main() {
	mbp.MustParseArgs(flags.NewParser(Config, flags.Default))
	mbp.InitLog(Config.Log)
	mbp.InitMetrics(Config.Metrics)

	var sequence int
	var open = func(ctx context.Context) (streaming.Stream[tick], error) {
		return &tickStream{
			ctx:      ctx,
			interval: Config.Ticks.Interval,
			remain:   Config.Ticks.FailEvery,
			next:     &sequence,
		}, nil
	}

	var b = streaming.New("ticks", open,
		func(t tick) string {
			return fmt.Sprintf("tick %d at %s", t.Sequence, t.At.Format(time.RFC3339Nano))
		},
		&retry.LinearBackoff{
			Interval: Config.Ticks.RetryDelay,
			Jitter:   Config.Ticks.RetryJitter,
			Limit:    Config.Ticks.RetryLimit,
		})
	defer b.Stop()

	var ctx, cancel = signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i != Config.Ticks.Receivers; i++ {
		wg.Add(1)
		go func(id int, r *broadcast.Receiver[string]) {
			defer wg.Done()
			for {
				var item, err = r.Recv(ctx)
				if err == io.EOF || err == context.Canceled {
					return
				}
				mbp.Must(err, "receiver failed")
				fmt.Fprintf(os.Stdout, "receiver %d: %s\n", id, item)
			}
		}(i, b.NewReceiver(0))
	}

	<-ctx.Done()
	log.Info("shutting down")
	b.Stop()
	wg.Wait()
}
