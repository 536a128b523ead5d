package domain

import "encoding/json"

// Event is one decoded trade document from the feed. The collector treats
// it as opaque apart from two optional bookkeeping fields; everything else
// is persisted verbatim.
type Event map[string]any

// TradeTimeMS returns the event timestamp ("T", ms since epoch) if present.
func (e Event) TradeTimeMS() (int64, bool) {
	return e.int64Field("T")
}

// TradeID returns the exchange-issued trade id ("t") if present.
func (e Event) TradeID() (int64, bool) {
	return e.int64Field("t")
}

func (e Event) int64Field(key string) (int64, bool) {
	v, ok := e[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}

// Source identifies where a segment's events came from and which collector
// instance wrote them. Instance ids must be unique across concurrently
// running processes; object-key uniqueness depends on it.
type Source struct {
	Exchange   string
	Stream     string
	Symbol     string
	InstanceID string
}
