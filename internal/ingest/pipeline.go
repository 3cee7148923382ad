// Package ingest funnels adapter output into the store. All store
// mutation happens on one sequencer goroutine, which is what keeps
// sequence numbers consecutive per line and makes HTTP handlers pure
// readers.
package ingest

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/mtcagent/internal/metrics"
	"github.com/snarg/mtcagent/internal/schema"
	"github.com/snarg/mtcagent/internal/shdr"
	"github.com/snarg/mtcagent/internal/store"
)

// Sink receives committed observations and asset changes, e.g. the MQTT
// publisher. Calls happen on the sequencer goroutine and must not block.
type Sink interface {
	PublishObservation(deviceUUID string, obs store.Observation)
	PublishAsset(deviceUUID string, asset *store.Asset)
}

type rawLine struct {
	deviceUUID string
	text       string
	reset      bool // connection loss marker, not a line
}

// Pipeline is the ingest sequencer: adapters enqueue raw SHDR lines,
// one goroutine parses and applies them.
type Pipeline struct {
	reg  *schema.Registry
	st   *store.Store
	sink Sink
	log  zerolog.Logger

	lines   chan rawLine
	parsers map[string]*shdr.Parser // per device; touched only by the sequencer

	// stopMu orders Offer sends against the channel close in Stop:
	// offers hold the read side while sending, Stop takes the write
	// side before closing.
	stopMu  sync.RWMutex
	stopped bool
	done    chan struct{}
	wg      sync.WaitGroup

	lineCount atomic.Int64
	obsCount  atomic.Int64
}

// PipelineOptions configures a Pipeline. Sink may be nil.
type PipelineOptions struct {
	Registry  *schema.Registry
	Store     *store.Store
	Sink      Sink
	QueueSize int
	Log       zerolog.Logger
}

// NewPipeline creates a pipeline; call Start to begin sequencing.
func NewPipeline(opts PipelineOptions) *Pipeline {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 4096
	}
	return &Pipeline{
		reg:     opts.Registry,
		st:      opts.Store,
		sink:    opts.Sink,
		log:     opts.Log.With().Str("component", "ingest").Logger(),
		lines:   make(chan rawLine, opts.QueueSize),
		parsers: make(map[string]*shdr.Parser),
		done:    make(chan struct{}),
	}
}

// Start launches the sequencer and the periodic stats log.
func (p *Pipeline) Start() {
	p.wg.Add(1)
	go p.run()
	go p.statsLoop()
	p.log.Info().Msg("ingest sequencer started")
}

// Stop drains the queue and waits for the sequencer to finish. Lines
// offered after (or concurrently with) Stop are dropped; in-flight
// Offer calls complete before the queue closes.
func (p *Pipeline) Stop() {
	p.stopMu.Lock()
	if p.stopped {
		p.stopMu.Unlock()
		return
	}
	p.stopped = true
	close(p.lines)
	p.stopMu.Unlock()

	p.wg.Wait()
	close(p.done)
	p.log.Info().
		Int64("lines", p.lineCount.Load()).
		Int64("observations", p.obsCount.Load()).
		Msg("ingest sequencer stopped")
}

// Offer enqueues one raw SHDR line for a device. Blocks when the queue
// is full so adapters exert backpressure instead of dropping data.
func (p *Pipeline) Offer(deviceUUID, text string) {
	p.offer(rawLine{deviceUUID: deviceUUID, text: text})
}

// OfferReset signals an adapter connection loss: any buffered
// multi-line asset body is discarded and the device's availability
// dataitem, if declared, goes UNAVAILABLE.
func (p *Pipeline) OfferReset(deviceUUID string) {
	p.offer(rawLine{deviceUUID: deviceUUID, reset: true})
}

func (p *Pipeline) offer(l rawLine) {
	p.stopMu.RLock()
	defer p.stopMu.RUnlock()
	if p.stopped {
		return
	}
	p.lines <- l
}

func (p *Pipeline) run() {
	defer p.wg.Done()
	for line := range p.lines {
		if line.reset {
			p.handleReset(line.deviceUUID)
			continue
		}
		p.handleLine(line.deviceUUID, line.text)
	}
}

func (p *Pipeline) parserFor(deviceUUID string) *shdr.Parser {
	if parser, ok := p.parsers[deviceUUID]; ok {
		return parser
	}
	parser := shdr.NewParser(p.reg, nil, p.log)
	p.parsers[deviceUUID] = parser
	return parser
}

func (p *Pipeline) handleLine(deviceUUID, text string) {
	p.lineCount.Add(1)
	metrics.SHDRLinesTotal.WithLabelValues(deviceUUID).Inc()

	line, cmd, err := p.parserFor(deviceUUID).ParseLine(deviceUUID, text)
	if err != nil {
		metrics.ParseErrorsTotal.Inc()
		p.log.Warn().Err(err).Str("device", deviceUUID).Msg("dropping malformed shdr line")
		return
	}
	if line != nil {
		p.applyLine(deviceUUID, line)
	}
	if cmd != nil {
		p.applyAssetCommand(deviceUUID, cmd)
	}
}

func (p *Pipeline) handleReset(deviceUUID string) {
	p.parserFor(deviceUUID).Reset()

	// Availability follows the adapter connection.
	for _, id := range p.reg.DataItemIDs([]string{deviceUUID}) {
		item, ok := p.reg.DataItem(id)
		if !ok || item.Type != "AVAILABILITY" {
			continue
		}
		now := time.Now().UTC().Format(time.RFC3339Nano)
		p.commit(deviceUUID, observation(item, now, store.Scalar("UNAVAILABLE")))
	}
}

// applyLine commits each field of a parsed line. Fields get
// consecutive sequence numbers in wire order.
func (p *Pipeline) applyLine(deviceUUID string, line *shdr.Line) {
	for _, f := range line.Fields {
		p.commit(deviceUUID, observation(f.Item, line.Timestamp, f.Value))
	}
}

func observation(item *schema.DataItem, timestamp string, value store.Value) store.Observation {
	return store.Observation{
		Time:           timestamp,
		DataItemID:     item.ID,
		Name:           item.Name,
		Type:           item.Type,
		SubType:        item.SubType,
		Category:       item.Category,
		Representation: item.Representation,
		Discrete:       item.Discrete,
		Value:          value,
	}
}

func (p *Pipeline) commit(deviceUUID string, obs store.Observation) {
	seq, stored := p.st.Update(obs)
	if !stored {
		metrics.ObservationsSuppressedTotal.Inc()
		return
	}
	p.obsCount.Add(1)
	metrics.ObservationsTotal.Inc()
	if p.sink != nil {
		obs.Sequence = seq
		p.sink.PublishObservation(deviceUUID, obs)
	}
}

func (p *Pipeline) statsLoop() {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	var lastLines, lastObs int64
	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			lines := p.lineCount.Load()
			obs := p.obsCount.Load()
			first, last, _ := p.st.Sequence()
			p.log.Info().
				Int64("lines_60s", lines-lastLines).
				Int64("observations_60s", obs-lastObs).
				Int64("first_sequence", first).
				Int64("last_sequence", last).
				Msg("stats")
			lastLines, lastObs = lines, obs
		}
	}
}
