package ingest

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/mtcagent/internal/metrics"
)

// Reconnect backoff bounds.
const (
	backoffInitial = 100 * time.Millisecond
	backoffMax     = 30 * time.Second
)

// Adapter maintains one TCP connection to a machine adapter, reads
// newline-delimited SHDR, and feeds the pipeline. Connection loss is
// retried with bounded exponential backoff; each loss resets the
// device's availability.
type Adapter struct {
	addr       string
	deviceUUID string
	pipeline   *Pipeline
	heartbeat  time.Duration
	log        zerolog.Logger

	// dial is swappable for tests.
	dial func(ctx context.Context) (net.Conn, error)
}

// AdapterOptions configures an Adapter.
type AdapterOptions struct {
	Addr       string
	DeviceUUID string
	Pipeline   *Pipeline
	Heartbeat  time.Duration // PING interval, default 10s
	Log        zerolog.Logger
}

// NewAdapter creates an adapter client; call Run to connect.
func NewAdapter(opts AdapterOptions) *Adapter {
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = 10 * time.Second
	}
	a := &Adapter{
		addr:       opts.Addr,
		deviceUUID: opts.DeviceUUID,
		pipeline:   opts.Pipeline,
		heartbeat:  opts.Heartbeat,
		log: opts.Log.With().
			Str("component", "adapter").
			Str("addr", opts.Addr).
			Str("device", opts.DeviceUUID).
			Logger(),
	}
	a.dial = func(ctx context.Context) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, "tcp", a.addr)
	}
	return a
}

// Run connects and re-connects until ctx is cancelled.
func (a *Adapter) Run(ctx context.Context) {
	backoff := backoffInitial
	for {
		conn, err := a.dial(ctx)
		if err != nil {
			a.log.Warn().Err(err).Dur("retry_in", backoff).Msg("adapter connect failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = nextBackoff(backoff)
			metrics.AdapterReconnectsTotal.WithLabelValues(a.addr).Inc()
			continue
		}

		a.log.Info().Msg("adapter connected")
		backoff = backoffInitial
		a.serve(ctx, conn)
		a.pipeline.OfferReset(a.deviceUUID)

		if ctx.Err() != nil {
			return
		}
		a.log.Warn().Dur("retry_in", backoff).Msg("adapter connection lost")
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = nextBackoff(backoff)
		metrics.AdapterReconnectsTotal.WithLabelValues(a.addr).Inc()
	}
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > backoffMax {
		return backoffMax
	}
	return d
}

// serve reads lines until the connection breaks or ctx is cancelled.
// The agent pings on the heartbeat interval; a connection that misses
// two intervals without any traffic is considered dead.
func (a *Adapter) serve(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(a.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				conn.Close()
				return
			case <-ticker.C:
				if _, err := fmt.Fprint(conn, "* PING\n"); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		conn.SetReadDeadline(time.Now().Add(2 * a.heartbeat))
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()
		if strings.HasPrefix(line, "* ") {
			a.handleCommand(line[2:])
			continue
		}
		a.pipeline.Offer(a.deviceUUID, line)
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		a.log.Debug().Err(err).Msg("adapter read ended")
	}
}

// handleCommand processes "* "-prefixed agent protocol lines. PONG is
// the heartbeat reply; everything else (calibration, shdrVersion, …)
// is informational.
func (a *Adapter) handleCommand(cmd string) {
	if strings.HasPrefix(cmd, "PONG") {
		return
	}
	a.log.Debug().Str("command", cmd).Msg("adapter command ignored")
}
