package session

import "time"

// timerKind tags what the machine's single pending timer means when it
// fires. At most one timer is armed at any moment: the silence timer in
// active, the delivery timer in responding, and the follow-up timer in
// passive after a response.
type timerKind int

const (
	timerNone timerKind = iota

	// timerSilence ends the current utterance when continuous silence
	// reaches the configured threshold.
	timerSilence

	// timerDelivery approximates the end of response playback; on expiry
	// the session leaves responding and opens the follow-up window.
	timerDelivery

	// timerFollowUp closes the follow-up window; on expiry the wake phrase
	// is required again.
	timerFollowUp
)

func (k timerKind) String() string {
	switch k {
	case timerSilence:
		return "silence"
	case timerDelivery:
		return "delivery"
	case timerFollowUp:
		return "follow-up"
	default:
		return "none"
	}
}

// pending is the machine's single armed timer. A nil channel never fires in
// a select, so a zero pending is safely dormant.
type pending struct {
	kind timerKind
	ch   <-chan time.Time
	stop func()
}

// newTimerFunc creates the expiry channel for a duration. The machine takes
// it as a dependency so tests can substitute hand-fired channels.
type newTimerFunc func(d time.Duration) (<-chan time.Time, func())

// stdTimer is the production newTimerFunc backed by [time.Timer].
func stdTimer(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTimer(d)
	return t.C, func() { t.Stop() }
}

// arm cancels any armed timer and arms a new one of the given kind.
func (p *pending) arm(kind timerKind, d time.Duration, newTimer newTimerFunc) {
	p.cancel()
	ch, stop := newTimer(d)
	p.kind = kind
	p.ch = ch
	p.stop = stop
}

// cancel disarms the timer. Safe to call when nothing is armed.
func (p *pending) cancel() {
	if p.stop != nil {
		p.stop()
	}
	p.kind = timerNone
	p.ch = nil
	p.stop = nil
}
