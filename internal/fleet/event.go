package fleet

import (
	"encoding/json"
	"maps"
	"time"
)

// EventType names a pipeline lifecycle event.
type EventType string

const (
	EventPipelineStarted    EventType = "pipeline_started"
	EventPipelineCompleted  EventType = "pipeline_completed"
	EventQueryStarted       EventType = "query_started"
	EventQueryCompleted     EventType = "query_completed"
	EventQueryFailed        EventType = "query_failed"
	EventStageStarted       EventType = "stage_started"
	EventStageCompleted     EventType = "stage_completed"
	EventCandidateGenerated EventType = "candidate_generated"
	EventGenerationFailed   EventType = "generation_failed"
	EventCandidateValidated EventType = "candidate_validated"
	EventAwaitingApproval   EventType = "awaiting_approval"
	EventApproved           EventType = "approved"
	EventPaused             EventType = "paused"
	EventResumed            EventType = "resumed"
)

// Event is immutable once emitted: Data is copied on the way in.
type Event struct {
	Seq       int64          `json:"-"`
	Type      EventType      `json:"type"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"-"`
}

type wireEvent struct {
	Type      EventType      `json:"type"`
	Data      map[string]any `json:"data"`
	Timestamp float64        `json:"timestamp"`
}

// MarshalJSON encodes the event as {"type", "data", "timestamp"} with the
// timestamp in fractional Unix seconds.
func (e Event) MarshalJSON() ([]byte, error) {
	data := e.Data
	if data == nil {
		data = map[string]any{}
	}
	return json.Marshal(wireEvent{
		Type:      e.Type,
		Data:      data,
		Timestamp: float64(e.Timestamp.UnixNano()) / 1e9,
	})
}

// UnmarshalJSON decodes the wire form.
func (e *Event) UnmarshalJSON(b []byte) error {
	var w wireEvent
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	sec := int64(w.Timestamp)
	nsec := int64((w.Timestamp - float64(sec)) * 1e9)
	*e = Event{
		Type:      w.Type,
		Data:      w.Data,
		Timestamp: time.Unix(sec, nsec).UTC(),
	}
	return nil
}

// Get returns a data field.
func (e Event) Get(key string) any {
	return e.Data[key]
}

func newEvent(seq int64, typ EventType, data map[string]any, at time.Time) Event {
	return Event{
		Seq:       seq,
		Type:      typ,
		Data:      maps.Clone(data),
		Timestamp: at,
	}
}
