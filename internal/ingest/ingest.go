// Package ingest turns raw data-topic payloads into buffered samples: it
// parses the delimited wire format, normalizes heterogeneous value encodings,
// expands thermal-frame arrays into derived average channels, and routes the
// result into the session store.
package ingest

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/carnegiemellonracing/PiDAQ/internal/model"
	"github.com/carnegiemellonracing/PiDAQ/internal/session"
)

// frameSuffix marks channels carrying a thermal-frame array; a derived
// arithmetic-mean point is ingested alongside them under avgSuffix.
const (
	frameSuffix = "_frame"
	avgSuffix   = "_avg"
)

// Wire timestamp layouts. Older device firmware emits naive ISO 8601 stamps
// without a zone designator; those are taken as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
}

// ParsePoint decodes one `deviceId|sessionId|timestamp|channel|value` line.
// The value field is split last so JSON payloads may themselves contain pipes.
func ParsePoint(raw []byte) (model.DataPoint, error) {
	parts := strings.SplitN(string(raw), "|", 5)
	if len(parts) != 5 {
		return model.DataPoint{}, fmt.Errorf("expected 5 fields, got %d", len(parts))
	}
	deviceID := strings.TrimSpace(parts[0])
	sessionID := strings.TrimSpace(parts[1])
	channel := strings.TrimSpace(parts[3])
	if deviceID == "" || sessionID == "" || channel == "" {
		return model.DataPoint{}, fmt.Errorf("empty device, session or channel field")
	}

	ts, err := parseTimestamp(strings.TrimSpace(parts[2]))
	if err != nil {
		return model.DataPoint{}, err
	}

	return model.DataPoint{
		DeviceID:  deviceID,
		SessionID: sessionID,
		Timestamp: ts,
		Channel:   channel,
		Value:     decodeValue(parts[4]),
	}, nil
}

func parseTimestamp(field string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, field); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", field)
}

// decodeValue normalizes the value field across device firmware generations:
// JSON scalars and arrays pass through, numbers encoded as text are coerced,
// and anything else is kept verbatim.
func decodeValue(field string) any {
	field = strings.TrimSpace(field)

	var v any
	if err := json.Unmarshal([]byte(field), &v); err != nil {
		if n, perr := strconv.ParseFloat(field, 64); perr == nil {
			return n
		}
		return field
	}
	if s, ok := v.(string); ok {
		if n, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return n
		}
	}
	return v
}

// Pipeline folds decoded points into the session store.
type Pipeline struct {
	store *session.Store

	// onPoint observes every buffered point, derived averages included.
	onPoint func(model.DataPoint)
}

func NewPipeline(store *session.Store) *Pipeline {
	return &Pipeline{store: store}
}

// OnPoint registers an observer invoked for each point that lands in a
// buffer, main and derived alike.
func (p *Pipeline) OnPoint(fn func(model.DataPoint)) { p.onPoint = fn }

// Ingest routes one point into its session's channel buffer and reports
// whether session state changed. Points for unknown sessions are discarded;
// devices have no error channel to answer on.
//
// Late points for ended sessions are accepted on purpose: the retained map is
// consulted as a whole, matching the dashboards' expectation that a stopped
// run keeps its trailing data.
func (p *Pipeline) Ingest(pt model.DataPoint) bool {
	sess, ok := p.store.Lookup(pt.SessionID)
	if !ok {
		return false
	}

	sess.Touch(pt.DeviceID, pt.Channel).Append(pt.Timestamp, pt.Value)
	if p.onPoint != nil {
		p.onPoint(pt)
	}

	if strings.HasSuffix(pt.Channel, frameSuffix) {
		if mean, ok := frameMean(pt.Value); ok {
			derived := pt
			derived.Channel = pt.Channel + avgSuffix
			derived.Value = mean
			p.Ingest(derived)
		}
		// An empty or non-numeric frame has no average; the derived point
		// is unavailable and dropped rather than buffered as zero.
	}
	return true
}

// frameMean computes the arithmetic mean of a frame array, coercing numeric
// text elements the same way scalar values are coerced.
func frameMean(value any) (float64, bool) {
	arr, ok := value.([]any)
	if !ok || len(arr) == 0 {
		return 0, false
	}
	var sum float64
	for _, el := range arr {
		switch x := el.(type) {
		case float64:
			sum += x
		case string:
			n, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
			if err != nil {
				return 0, false
			}
			sum += n
		default:
			return 0, false
		}
	}
	return sum / float64(len(arr)), true
}
