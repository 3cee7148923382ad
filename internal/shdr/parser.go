// Package shdr parses the pipe-delimited SHDR wire dialect adapters
// speak: observation lines, asset command lines, and multi-line asset
// bodies.
package shdr

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/mtcagent/internal/schema"
	"github.com/snarg/mtcagent/internal/store"
)

// Resolver maps a device-scoped wire name to its dataitem. The schema
// registry implements it.
type Resolver interface {
	Resolve(deviceUUID, wireName string) (*schema.DataItem, bool)
}

// Field is one resolved (dataitem, value) pair from a line.
type Field struct {
	Item  *schema.DataItem
	Value store.Value
}

// Line is a parsed observation line: one timestamp, one or more fields.
type Line struct {
	Timestamp string
	Fields    []Field
}

// AssetVerb is one of the four asset command verbs.
type AssetVerb string

const (
	VerbAsset          AssetVerb = "@ASSET@"
	VerbUpdateAsset    AssetVerb = "@UPDATE_ASSET@"
	VerbRemoveAsset    AssetVerb = "@REMOVE_ASSET@"
	VerbRemoveAllAsset AssetVerb = "@REMOVE_ALL_ASSETS@"
)

// AssetCommand is a parsed asset line. Body is set for @ASSET@;
// KVPairs or Fragment for @UPDATE_ASSET@; AssetType for
// @REMOVE_ALL_ASSETS@ (and @ASSET@).
type AssetCommand struct {
	Verb      AssetVerb
	Timestamp string
	AssetID   string
	AssetType string
	Body      string
	KVPairs   [][2]string
	Fragment  string
}

const multilinePrefix = "--multiline--"

// Parser tokenizes SHDR lines for one adapter connection. It is not
// goroutine-safe: the sequencer owns one parser per device and feeds it
// lines in arrival order (multi-line asset bodies span calls).
type Parser struct {
	resolver Resolver
	log      zerolog.Logger
	now      func() string

	pending *pendingAsset
}

type pendingAsset struct {
	cmd   AssetCommand
	token string
	lines []string
}

// NewParser creates a parser. now supplies the wall-clock timestamp
// substituted for lines that carry none; nil means UTC RFC3339Nano.
func NewParser(resolver Resolver, now func() string, log zerolog.Logger) *Parser {
	if now == nil {
		now = func() string { return time.Now().UTC().Format(time.RFC3339Nano) }
	}
	return &Parser{
		resolver: resolver,
		log:      log.With().Str("component", "shdr").Logger(),
		now:      now,
	}
}

// Reset discards any buffered multi-line asset body, logging the loss.
// Called when the adapter connection drops mid-body.
func (p *Parser) Reset() {
	if p.pending != nil {
		p.log.Warn().
			Str("asset_id", p.pending.cmd.AssetID).
			Int("buffered_lines", len(p.pending.lines)).
			Msg("multi-line asset terminated prematurely, discarding")
		p.pending = nil
	}
}

// ParseLine consumes one raw line. Exactly one of the returns is
// non-nil on success; both are nil while a multi-line asset body is
// buffering. Errors are recoverable: the caller logs and drops the line.
func (p *Parser) ParseLine(deviceUUID, raw string) (*Line, *AssetCommand, error) {
	raw = strings.TrimRight(raw, "\r\n")

	if p.pending != nil {
		return nil, p.feedMultiline(raw), nil
	}
	if raw == "" {
		return nil, nil, nil
	}

	tokens := strings.Split(raw, "|")
	timestamp, fields := p.splitTimestamp(tokens)

	if len(fields) == 0 {
		return nil, nil, fmt.Errorf("shdr line has no fields: %q", raw)
	}

	if strings.HasPrefix(fields[0], "@") {
		cmd, err := p.parseAssetCommand(timestamp, fields)
		if err != nil {
			return nil, nil, err
		}
		return nil, cmd, nil
	}

	line, err := p.parseFields(deviceUUID, timestamp, fields)
	if err != nil {
		return nil, nil, err
	}
	if line == nil {
		return nil, nil, nil
	}
	return line, nil, nil
}

// splitTimestamp applies the timestamp heuristic: a first field that
// begins with four digits and a dash is ISO-8601; a plain decimal is a
// relative timestamp passed through verbatim; anything else (including
// an empty field) means the agent stamps the current wall time.
func (p *Parser) splitTimestamp(tokens []string) (string, []string) {
	first := tokens[0]
	if first == "" {
		return p.now(), tokens[1:]
	}
	if looksISO(first) {
		return first, tokens[1:]
	}
	if _, err := strconv.ParseFloat(first, 64); err == nil {
		return first, tokens[1:]
	}
	return p.now(), tokens
}

func looksISO(s string) bool {
	if len(s) < 5 || s[4] != '-' {
		return false
	}
	for _, c := range s[:4] {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// parseFields consumes (name, value-group) pairs. Arity depends on the
// resolved dataitem: CONDITION takes five fields, TIME_SERIES takes
// count, rate, then the rest of the line, MESSAGE two, ALARM five,
// everything else one.
func (p *Parser) parseFields(deviceUUID, timestamp string, fields []string) (*Line, error) {
	line := &Line{Timestamp: timestamp}

	i := 0
	for i < len(fields) {
		name := fields[i]
		if name == "" {
			i++
			continue
		}

		item, ok := p.resolver.Resolve(deviceUUID, name)
		if !ok {
			p.log.Warn().
				Str("device", deviceUUID).
				Str("name", name).
				Msg("unknown dataitem name, skipping pair")
			i += 2
			continue
		}

		rest := fields[i+1:]
		var value store.Value
		var consumed int

		switch {
		case item.Category == schema.CategoryCondition:
			if len(rest) < 5 {
				return nil, fmt.Errorf("condition %s: want 5 fields, have %d", name, len(rest))
			}
			value = store.Condition{
				Level:          rest[0],
				NativeCode:     rest[1],
				NativeSeverity: rest[2],
				Qualifier:      rest[3],
				Message:        rest[4],
			}
			consumed = 5
		case item.IsTimeSeries():
			if len(rest) < 3 {
				return nil, fmt.Errorf("time series %s: want count, rate, samples", name)
			}
			value = store.TimeSeries{
				SampleCount: rest[0],
				SampleRate:  rest[1],
				Samples:     strings.Join(rest[2:], "|"),
			}
			consumed = len(rest)
		case item.Type == schema.TypeMessage:
			if len(rest) < 2 {
				return nil, fmt.Errorf("message %s: want nativeCode and text", name)
			}
			value = store.Message{NativeCode: rest[0], Content: rest[1]}
			consumed = 2
		case item.Type == schema.TypeAlarm:
			if len(rest) < 5 {
				return nil, fmt.Errorf("alarm %s: want 5 fields, have %d", name, len(rest))
			}
			value = store.Alarm{
				Code:       rest[0],
				NativeCode: rest[1],
				Severity:   rest[2],
				State:      rest[3],
				Content:    rest[4],
			}
			consumed = 5
		default:
			if len(rest) < 1 {
				return nil, fmt.Errorf("dataitem %s: missing value", name)
			}
			value = store.Scalar(rest[0])
			consumed = 1
		}

		line.Fields = append(line.Fields, Field{Item: item, Value: value})
		i += 1 + consumed
	}

	if len(line.Fields) == 0 {
		return nil, nil
	}
	return line, nil
}
