package builtin

import (
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-rules/internal/automation"
)

// minInterval bounds how fast an interval trigger may fire.
const minInterval = 10 * time.Millisecond

var intervalSchema = automation.TypeSchema{
	Label:       "Interval",
	Description: "Fires repeatedly at a fixed interval while the rule is active",
	Parameters: []automation.ParameterDescriptor{
		{Name: "intervalSeconds", Type: automation.ParamNumber, Required: true, Description: "Seconds between events"},
	},
}

// intervalTrigger fires {firedAt, count} every interval until disarmed.
type intervalTrigger struct {
	interval time.Duration

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

func newIntervalTrigger(m automation.Module) (automation.Handler, error) {
	secs, err := m.Configuration.GetNumber("intervalSeconds", 0)
	if err != nil {
		return nil, err
	}
	interval := time.Duration(secs * float64(time.Second))
	if interval < minInterval {
		return nil, fmt.Errorf("intervalSeconds %v is below the %v minimum", secs, minInterval)
	}
	return &intervalTrigger{interval: interval}, nil
}

func (t *intervalTrigger) Arm(cb automation.TriggerCallback) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop != nil {
		return fmt.Errorf("interval trigger already armed")
	}
	t.stop = make(chan struct{})
	t.done = make(chan struct{})
	go t.run(cb, t.stop, t.done)
	return nil
}

func (t *intervalTrigger) run(cb automation.TriggerCallback, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	count := 0
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			count++
			cb(automation.Inputs{"firedAt": now.UTC().Format(time.RFC3339Nano), "count": count})
		}
	}
}

// Disarm stops the ticker and waits for the goroutine to exit.
func (t *intervalTrigger) Disarm() {
	t.mu.Lock()
	stop, done := t.stop, t.done
	t.stop, t.done = nil, nil
	t.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
}

func (t *intervalTrigger) Dispose() error {
	t.Disarm()
	return nil
}
