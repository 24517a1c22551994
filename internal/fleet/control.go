package fleet

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// ControlType is an operator command.
type ControlType string

const (
	ControlApprove ControlType = "approve"
	ControlPause   ControlType = "pause"
	ControlResume  ControlType = "resume"
)

// Control is a parsed control message.
type Control struct {
	Type ControlType `json:"type"`
}

// ErrUnknownControl reports a well-formed message of an unknown type.
var ErrUnknownControl = errors.New("unknown control type")

// ParseControl decodes one {"type": ...} message. Type matching ignores
// case and surrounding space.
func ParseControl(b []byte) (Control, error) {
	var c Control
	if err := json.Unmarshal(b, &c); err != nil {
		return Control{}, fmt.Errorf("malformed control message: %w", err)
	}
	c.Type = ControlType(strings.ToLower(strings.TrimSpace(string(c.Type))))
	switch c.Type {
	case ControlApprove, ControlPause, ControlResume:
		return c, nil
	}
	return Control{}, fmt.Errorf("%w: %q", ErrUnknownControl, c.Type)
}

// Controller holds the pause flag and the approval gate.
//
// Thread-safety: all methods are safe for concurrent use.
type Controller struct {
	bus *Bus

	mu        sync.Mutex
	paused    bool
	resumed   chan struct{} // closed on resume
	approvals int
	approved  chan struct{} // closed and replaced on each approve
}

// NewController creates an unpaused controller. bus may be nil.
func NewController(bus *Bus) *Controller {
	return &Controller{
		bus:      bus,
		resumed:  make(chan struct{}),
		approved: make(chan struct{}),
	}
}

// Apply carries out a control message.
func (c *Controller) Apply(ctl Control) {
	switch ctl.Type {
	case ControlApprove:
		c.Approve()
	case ControlPause:
		c.Pause()
	case ControlResume:
		c.Resume()
	}
}

// Pause makes the next Checkpoint wait. Pausing twice is a no-op.
func (c *Controller) Pause() {
	c.mu.Lock()
	if c.paused {
		c.mu.Unlock()
		return
	}
	c.paused = true
	c.resumed = make(chan struct{})
	c.mu.Unlock()
	c.emit(EventPaused, nil)
}

// Resume releases every goroutine waiting at a Checkpoint.
func (c *Controller) Resume() {
	c.mu.Lock()
	if !c.paused {
		c.mu.Unlock()
		return
	}
	c.paused = false
	close(c.resumed)
	c.mu.Unlock()
	c.emit(EventResumed, nil)
}

// Paused reports the flag.
func (c *Controller) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// Approve releases one gate. An approval that arrives while nothing waits
// is kept for the next AwaitApproval.
func (c *Controller) Approve() {
	c.mu.Lock()
	c.approvals++
	close(c.approved)
	c.approved = make(chan struct{})
	c.mu.Unlock()
}

// Checkpoint returns at once unless paused, in which case it waits for
// Resume or ctx. Call it only between stages.
func (c *Controller) Checkpoint(ctx context.Context, stage string) error {
	c.mu.Lock()
	if !c.paused {
		c.mu.Unlock()
		return nil
	}
	wait := c.resumed
	c.mu.Unlock()

	slog.Info("pipeline paused at checkpoint", "stage", stage)
	select {
	case <-wait:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AwaitApproval waits until an approval is available and consumes it.
func (c *Controller) AwaitApproval(ctx context.Context, gate string) error {
	announced := false
	for {
		c.mu.Lock()
		if c.approvals > 0 {
			c.approvals--
			c.mu.Unlock()
			c.emit(EventApproved, map[string]any{"gate": gate})
			return nil
		}
		wait := c.approved
		c.mu.Unlock()

		if !announced {
			c.emit(EventAwaitingApproval, map[string]any{"gate": gate})
			announced = true
		}
		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Controller) emit(typ EventType, data map[string]any) {
	if c.bus != nil {
		c.bus.Emit(typ, data)
	}
}

// maxControlLine bounds one control message. Longer lines are skipped.
const maxControlLine = 64 * 1024

var errControlTooLong = fmt.Errorf("control message longer than %d bytes", maxControlLine)

// ServeControl reads newline-delimited control messages from r and
// applies them until r is exhausted or ctx is done. Malformed, unknown and
// overlong messages are logged and skipped.
func ServeControl(ctx context.Context, r io.Reader, c *Controller) error {
	br := bufio.NewReader(r)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		raw, err := readControlLine(br)
		if errors.Is(err, errControlTooLong) {
			slog.Warn("ignoring control message", "error", err)
			continue
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		if line := strings.TrimSpace(string(raw)); line != "" {
			ctl, perr := ParseControl([]byte(line))
			if perr != nil {
				slog.Warn("ignoring control message", "error", perr)
			} else {
				slog.Debug("control message", "type", ctl.Type)
				c.Apply(ctl)
			}
		}
		if err != nil {
			return nil
		}
	}
}

// readControlLine returns the next line without its newline. A line over
// maxControlLine is consumed in full and reported as errControlTooLong.
func readControlLine(br *bufio.Reader) ([]byte, error) {
	var line []byte
	tooLong := false
	for {
		chunk, err := br.ReadSlice('\n')
		if !tooLong {
			if len(line)+len(chunk) > maxControlLine+1 {
				tooLong, line = true, nil
			} else {
				line = append(line, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if tooLong && (err == nil || errors.Is(err, io.EOF)) {
			return nil, errControlTooLong
		}
		return line, err
	}
}
