package source

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"

	"github.com/target/jobtracker/internal/domain/ledger"
	"github.com/target/jobtracker/internal/domain/model"
)

// FieldMapping holds one JMESPath expression per event field, evaluated against each
// decoded source record.
type FieldMapping struct {
	ID        string
	Timestamp string
	Env       string
	Job       string
	Kind      string
	Message   string
}

// DefaultFieldMapping matches records of the form
// {"timestamp": 1700000000.5, "instance": "P", "job": "etl", "event": "START", "message": "...", "_id": 7}.
func DefaultFieldMapping() FieldMapping {
	return FieldMapping{
		ID:        "_id",
		Timestamp: "timestamp",
		Env:       "instance",
		Job:       "job",
		Kind:      "event",
		Message:   "message",
	}
}

// withDefaults fills empty expressions from the default mapping.
func (m FieldMapping) withDefaults() FieldMapping {
	d := DefaultFieldMapping()
	pick := func(v, def string) string {
		if strings.TrimSpace(v) == "" {
			return def
		}
		return v
	}
	return FieldMapping{
		ID:        pick(m.ID, d.ID),
		Timestamp: pick(m.Timestamp, d.Timestamp),
		Env:       pick(m.Env, d.Env),
		Job:       pick(m.Job, d.Job),
		Kind:      pick(m.Kind, d.Kind),
		Message:   pick(m.Message, d.Message),
	}
}

// Decoder turns raw JSON records into events.
type Decoder struct {
	mapping FieldMapping
	newID   func() string
}

// NewDecoder validates every expression of mapping. Empty expressions use the default mapping.
// newID generates ids for records without one and defaults to ledger.NewID.
func NewDecoder(mapping FieldMapping, newID func() string) (*Decoder, error) {
	mapping = mapping.withDefaults()
	exprs := map[string]string{
		"id":        mapping.ID,
		"timestamp": mapping.Timestamp,
		"env":       mapping.Env,
		"job":       mapping.Job,
		"kind":      mapping.Kind,
		"message":   mapping.Message,
	}
	var errs []error
	for field, expr := range exprs {
		if _, err := jmespath.Compile(expr); err != nil {
			errs = append(errs, fmt.Errorf("%s expression %q: %w", field, expr, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if newID == nil {
		newID = ledger.NewID
	}
	return &Decoder{mapping: mapping, newID: newID}, nil
}

// DecodeBatch decodes a JSON array of records. Empty input yields no events.
func (d *Decoder) DecodeBatch(data []byte) ([]model.Event, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode record batch: %w", err)
	}
	return d.DecodeRecords(raw)
}

// DecodeRecords decodes each record in order.
func (d *Decoder) DecodeRecords(records []json.RawMessage) ([]model.Event, error) {
	events := make([]model.Event, 0, len(records))
	for i, rec := range records {
		ev, err := d.DecodeRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		events = append(events, ev)
	}
	return events, nil
}

// DecodeRecord decodes a single JSON record.
func (d *Decoder) DecodeRecord(record json.RawMessage) (model.Event, error) {
	var doc any
	if err := json.Unmarshal(record, &doc); err != nil {
		return model.Event{}, fmt.Errorf("decode record: %w", err)
	}

	tsRaw, err := jmespath.Search(d.mapping.Timestamp, doc)
	if err != nil {
		return model.Event{}, fmt.Errorf("timestamp: %w", err)
	}
	ts, err := toTime(tsRaw)
	if err != nil {
		return model.Event{}, fmt.Errorf("timestamp: %w", err)
	}

	fields := make(map[string]string, 5)
	for name, expr := range map[string]string{
		"id":      d.mapping.ID,
		"env":     d.mapping.Env,
		"job":     d.mapping.Job,
		"kind":    d.mapping.Kind,
		"message": d.mapping.Message,
	} {
		v, err := jmespath.Search(expr, doc)
		if err != nil {
			return model.Event{}, fmt.Errorf("%s: %w", name, err)
		}
		fields[name] = toString(v)
	}

	if fields["job"] == "" || fields["env"] == "" || fields["kind"] == "" {
		return model.Event{}, errors.New("record is missing job, env or event kind")
	}

	id := fields["id"]
	if id == "" {
		id = d.newID()
	}

	return model.Event{
		ID:        id,
		Timestamp: ts,
		Env:       fields["env"],
		Job:       fields["job"],
		Kind:      fields["kind"],
		Message:   fields["message"],
	}, nil
}

// toTime accepts epoch seconds as a JSON number or numeric string, or an RFC 3339 string.
func toTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case float64:
		return epochSeconds(t), nil
	case string:
		s := strings.TrimSpace(t)
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return epochSeconds(f), nil
		}
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("unsupported timestamp %q", t)
		}
		return parsed.UTC(), nil
	case nil:
		return time.Time{}, errors.New("missing timestamp")
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp type %T", v)
	}
}

// epochSeconds converts fractional epoch seconds at microsecond precision.
func epochSeconds(f float64) time.Time {
	return time.UnixMicro(int64(math.Round(f * 1e6))).UTC()
}

func toString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1e15 {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
