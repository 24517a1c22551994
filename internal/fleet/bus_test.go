package fleet

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func fixedTime() time.Time { return epoch }

func TestBus_EmitDrainFIFO(t *testing.T) {
	b := NewBus(WithTimeSource(fixedTime))
	for i := 1; i <= 3; i++ {
		require.True(t, b.Emit(EventStageStarted, map[string]any{"n": i}))
	}

	got := b.Drain(10)
	require.Len(t, got, 3)
	for i, e := range got {
		assert.Equal(t, int64(i+1), e.Seq)
		assert.Equal(t, i+1, e.Get("n"))
		assert.Equal(t, epoch, e.Timestamp)
	}
	assert.Zero(t, b.Len())
	assert.Nil(t, b.Drain(10))
}

// Draining 3 of 10 queued events leaves 7 for the next call.
func TestBus_DrainLeavesRemainder(t *testing.T) {
	b := NewBus()
	for i := 0; i < 10; i++ {
		b.Emit(EventCandidateGenerated, map[string]any{"i": i})
	}

	first := b.Drain(3)
	require.Len(t, first, 3)
	assert.Equal(t, 0, first[0].Get("i"))
	assert.Equal(t, 7, b.Len())

	rest := b.Drain(100)
	require.Len(t, rest, 7)
	assert.Equal(t, 3, rest[0].Get("i"))
	assert.Equal(t, 9, rest[6].Get("i"))
}

func TestBus_DrainNonPositive(t *testing.T) {
	b := NewBus()
	b.Emit(EventPaused, nil)
	assert.Empty(t, b.Drain(0))
	assert.Empty(t, b.Drain(-1))
	assert.Equal(t, 1, b.Len())
}

func TestBus_FullDropsNewest(t *testing.T) {
	b := NewBus(WithCapacity(2))
	assert.True(t, b.Emit(EventStageStarted, map[string]any{"i": 1}))
	assert.True(t, b.Emit(EventStageStarted, map[string]any{"i": 2}))

	done := make(chan bool)
	go func() { done <- b.Emit(EventStageStarted, map[string]any{"i": 3}) }()
	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a full bus")
	}

	got := b.Drain(5)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Get("i"))
	assert.Equal(t, 2, got[1].Get("i"))
	assert.Equal(t, int64(1), b.Dropped())
	assert.Equal(t, int64(2), b.Emitted())
}

func TestBus_EventDataIsCopied(t *testing.T) {
	b := NewBus()
	data := map[string]any{"status": "WIN"}
	b.Emit(EventCandidateValidated, data)
	data["status"] = "ERROR"

	got := b.Drain(1)
	assert.Equal(t, "WIN", got[0].Get("status"))
}

func TestBus_ConcurrentEmitters(t *testing.T) {
	b := NewBus(WithCapacity(500))
	const producers, each = 20, 50

	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func(p int) {
			defer wg.Done()
			for i := 0; i < each; i++ {
				b.Emit(EventStageCompleted, map[string]any{"p": p})
			}
		}(p)
	}

	var drained []Event
	stop := make(chan struct{})
	var cwg sync.WaitGroup
	cwg.Add(1)
	go func() {
		defer cwg.Done()
		for {
			select {
			case <-stop:
				drained = append(drained, b.Drain(producers*each)...)
				return
			default:
				drained = append(drained, b.Drain(7)...)
			}
		}
	}()
	wg.Wait()
	close(stop)
	cwg.Wait()

	assert.Equal(t, int64(producers*each), b.Emitted()+b.Dropped())
	assert.Len(t, drained, int(b.Emitted()))
	for i := 1; i < len(drained); i++ {
		assert.Less(t, drained[i-1].Seq, drained[i].Seq)
	}
}

func TestBus_Close(t *testing.T) {
	b := NewBus()
	b.Emit(EventPipelineStarted, nil)
	b.Close()
	b.Close()

	assert.False(t, b.Emit(EventPipelineCompleted, nil))
	<-b.Wait() // signal buffered by the first Emit
	_, open := <-b.Wait()
	assert.False(t, open)
	assert.Len(t, b.Drain(5), 1)
}

func TestEvent_WireFormat(t *testing.T) {
	e := newEvent(7, EventCandidateValidated, map[string]any{"status": "WIN"}, epoch.Add(1500*time.Millisecond))
	b, err := json.Marshal(e)
	require.NoError(t, err)
	assert.JSONEq(t, fmt.Sprintf(`{"type":"candidate_validated","data":{"status":"WIN"},"timestamp":%d.5}`, epoch.Unix()+1), string(b))

	var back Event
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, EventCandidateValidated, back.Type)
	assert.Equal(t, "WIN", back.Get("status"))
	assert.WithinDuration(t, e.Timestamp, back.Timestamp, time.Microsecond)

	empty, err := json.Marshal(Event{Type: EventPaused, Timestamp: epoch})
	require.NoError(t, err)
	assert.Contains(t, string(empty), `"data":{}`)
}

func TestClock_Monotonic(t *testing.T) {
	c := NewClock()
	assert.Equal(t, int64(0), c.Current())
	assert.Equal(t, int64(1), c.Next())
	assert.Equal(t, int64(2), c.Next())
	assert.Equal(t, int64(2), c.Current())
}
