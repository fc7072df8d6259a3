// Package mock provides a scriptable wake-word detector for tests.
package mock

import (
	"sync"

	"github.com/halcyon-voice/halcyon/pkg/provider/wakeword"
)

// Detector is a test double for [wakeword.Detector]. Scores are delivered
// from a FIFO script; once the script is exhausted every frame scores zero.
// All methods are safe for concurrent use.
type Detector struct {
	mu     sync.Mutex
	script []map[string]float64
	errs   []error
	calls  int
}

var _ wakeword.Detector = (*Detector)(nil)

// New returns an empty mock detector.
func New() *Detector { return &Detector{} }

// Push queues scores to be returned by subsequent Score calls, one map per
// call, in order.
func (d *Detector) Push(scores ...map[string]float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.script = append(d.script, scores...)
}

// PushErr queues an error to be returned by the next Score call.
func (d *Detector) PushErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.script = append(d.script, nil)
	d.errs = append(d.errs, err)
}

// Score implements [wakeword.Detector].
func (d *Detector) Score([]byte) (map[string]float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if len(d.script) == 0 {
		return map[string]float64{}, nil
	}
	next := d.script[0]
	d.script = d.script[1:]
	if next == nil && len(d.errs) > 0 {
		err := d.errs[0]
		d.errs = d.errs[1:]
		return nil, err
	}
	if next == nil {
		next = map[string]float64{}
	}
	return next, nil
}

// Keywords implements [wakeword.Detector].
func (d *Detector) Keywords() []string { return []string{"halcyon"} }

// Calls reports how many times Score was invoked.
func (d *Detector) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}
