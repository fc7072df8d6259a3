package session

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/halcyon-voice/halcyon/internal/pipeline"
	"github.com/halcyon-voice/halcyon/pkg/audio"
	"github.com/halcyon-voice/halcyon/pkg/memory"
	"github.com/halcyon-voice/halcyon/pkg/provider/router"
	"github.com/halcyon-voice/halcyon/pkg/provider/vad"
	"github.com/halcyon-voice/halcyon/pkg/provider/wakeword"

	"github.com/halcyon-voice/halcyon/internal/observe"
)

// Config holds the conversation thresholds for one session.
// Zero values are replaced with defaults by [New].
type Config struct {
	// SessionID identifies the session in logs, metrics, and the store.
	SessionID string

	// WakeThreshold is the minimum wake-word confidence to activate.
	// Default: 0.5.
	WakeThreshold float64

	// SilenceTimeout is the continuous-silence duration that ends an
	// utterance. Default: 3s.
	SilenceTimeout time.Duration

	// FollowUpWindow is how long after a response the session listens for
	// continued speech without the wake phrase. Default: 10s.
	FollowUpWindow time.Duration

	// ContextTurns bounds the in-process conversation history. Default: 10.
	ContextTurns int
}

// Deps are the collaborators a [Machine] drives. Wake, VAD, Responder, and
// Sink are required; the rest default sensibly.
type Deps struct {
	Wake      wakeword.Detector
	VAD       vad.Session
	Responder pipeline.Responder
	Sink      Sink

	// Store, when non-nil, receives every completed turn for durable
	// transcripts. Store failures are logged, never surfaced to the user.
	Store memory.Store

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// Logger defaults to [slog.Default].
	Logger *slog.Logger

	// Now and NewTimer exist so tests can control time. Production code
	// leaves them nil.
	Now      func() time.Time
	NewTimer newTimerFunc
}

// pipelineOutcome carries one pipeline result back into the Run loop. The
// generation counter lets the loop drop results from runs that were
// interrupted.
type pipelineOutcome struct {
	gen   uint64
	reply pipeline.Reply
	err   error
}

// Machine is the voice interaction state machine for one session.
//
// Create with [New], start with [Run], and feed it via [Machine.Ingest] and
// [Machine.IngestText]. All other state lives inside the Run goroutine.
type Machine struct {
	cfg      Config
	wake     wakeword.Detector
	vad      vad.Session
	resp     pipeline.Responder
	sink     Sink
	store    memory.Store
	metrics  *observe.Metrics
	log      *slog.Logger
	now      func() time.Time
	newTimer newTimerFunc

	frames chan []byte
	texts  chan string

	// stateVal mirrors the loop-owned state for lock-free reads from other
	// goroutines (gateway status, tests).
	stateVal atomic.Int32

	// Everything below is owned by the Run goroutine.
	state          State
	recorder       *Recorder
	history        *History
	lastVoice      time.Time
	pend           pending
	followUpOpen   bool
	pipelineGen    uint64
	pipelineCancel context.CancelFunc
	pipelineCh     chan pipelineOutcome
}

// New creates a Machine. It does not start the loop; call [Machine.Run].
func New(cfg Config, deps Deps) (*Machine, error) {
	if deps.Wake == nil || deps.VAD == nil || deps.Responder == nil || deps.Sink == nil {
		return nil, errors.New("session: Wake, VAD, Responder, and Sink are required")
	}
	if cfg.WakeThreshold == 0 {
		cfg.WakeThreshold = 0.5
	}
	if cfg.SilenceTimeout <= 0 {
		cfg.SilenceTimeout = 3 * time.Second
	}
	if cfg.FollowUpWindow <= 0 {
		cfg.FollowUpWindow = 10 * time.Second
	}

	m := &Machine{
		cfg:        cfg,
		wake:       deps.Wake,
		vad:        deps.VAD,
		resp:       deps.Responder,
		sink:       deps.Sink,
		store:      deps.Store,
		metrics:    deps.Metrics,
		log:        deps.Logger,
		now:        deps.Now,
		newTimer:   deps.NewTimer,
		frames:     make(chan []byte, 256),
		texts:      make(chan string, 4),
		recorder:   NewRecorder(),
		history:    NewHistory(cfg.ContextTurns),
		pipelineCh: make(chan pipelineOutcome, 1),
	}
	if m.metrics == nil {
		m.metrics = observe.DefaultMetrics()
	}
	if m.log == nil {
		m.log = slog.Default()
	}
	m.log = m.log.With("session_id", cfg.SessionID)
	if m.now == nil {
		m.now = time.Now
	}
	if m.newTimer == nil {
		m.newTimer = stdTimer
	}
	return m, nil
}

// State reports the current state. Safe to call from any goroutine.
func (m *Machine) State() State {
	return State(m.stateVal.Load())
}

// SeedHistory loads previously stored turns into the conversation context.
// Call before [Run].
func (m *Machine) SeedHistory(turns []router.Turn) {
	m.history.Seed(turns)
}

// Ingest submits one PCM frame. The frame is copied, so the caller may reuse
// its buffer. Blocks only when the machine is severely backlogged.
func (m *Machine) Ingest(ctx context.Context, frame []byte) error {
	buf := make([]byte, len(frame))
	copy(buf, frame)
	select {
	case m.frames <- buf:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IngestText submits a typed utterance. The caller is responsible for
// wake-phrase gating; the machine treats the text as a completed utterance
// and moves straight to processing.
func (m *Machine) IngestText(ctx context.Context, text string) error {
	select {
	case m.texts <- text:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes the state machine until ctx is cancelled. It always returns
// ctx's error.
func (m *Machine) Run(ctx context.Context) error {
	defer func() {
		m.pend.cancel()
		if m.pipelineCancel != nil {
			m.pipelineCancel()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame := <-m.frames:
			m.handleFrame(ctx, frame)
		case text := <-m.texts:
			m.handleText(ctx, text)
		case <-m.pend.ch:
			m.handleTimer(ctx)
		case out := <-m.pipelineCh:
			m.handleOutcome(ctx, out)
		}
	}
}

// ─── Frame ingestion ──────────────────────────────────────────────────────────

// handleFrame runs the per-frame algorithm. The wake check always happens
// first so that activation is never starved by the other checks.
func (m *Machine) handleFrame(ctx context.Context, frame []byte) {
	keyword, confidence, woke := m.detectWake(frame)

	switch m.state {
	case StatePassive:
		if woke {
			m.metrics.RecordWakeDetection(ctx, keyword)
			m.log.Info("wake phrase detected",
				"keyword", keyword, "confidence", confidence)
			m.sink.ActivationCue()
			// The frame that carried the wake phrase belongs to the wake,
			// not to the new utterance.
			m.beginUtterance(ctx, nil)
			return
		}
		if m.followUpOpen && m.detectSpeech(frame) {
			m.metrics.FollowUps.Add(ctx, 1)
			m.log.Debug("follow-up speech, continuing conversation")
			m.followUpOpen = false
			m.beginUtterance(ctx, frame)
		}
		// Anything else in passive is discarded unexamined.

	case StateActive:
		if woke {
			// A second wake phrase discards the partial utterance and starts
			// over; the two recordings are never merged.
			m.interrupt(ctx, keyword, confidence)
			return
		}
		speech := m.detectSpeech(frame)
		if speech {
			m.lastVoice = m.now()
		}
		m.recorder.Append(frame, speech)
		if m.now().Sub(m.lastVoice) >= m.cfg.SilenceTimeout {
			m.endUtterance(ctx)
		}

	case StateProcessing, StateResponding:
		// Speech alone is not a barge-in; only the wake phrase pulls the
		// session back while it is busy.
		if woke {
			m.interrupt(ctx, keyword, confidence)
		}
	}
}

// handleText submits a typed utterance directly to the pipeline. Typed input
// while a response is in flight is dropped; the voice path owns interruption
// semantics.
func (m *Machine) handleText(ctx context.Context, text string) {
	if text == "" {
		return
	}
	if m.state == StateProcessing || m.state == StateResponding {
		m.log.Debug("dropping text input while busy", "state", m.state)
		return
	}

	m.pend.cancel()
	m.followUpOpen = false
	m.recorder.Reset()
	m.sink.AcknowledgementCue()
	m.setState(ctx, StateProcessing)
	m.startPipeline(ctx, pipeline.Request{
		SessionID: m.cfg.SessionID,
		Text:      text,
		Context:   m.history.Snapshot(),
	})
}

// ─── Transitions ──────────────────────────────────────────────────────────────

// beginUtterance moves to active and starts recording. firstFrame, when
// non-nil, is the speech frame that triggered the transition and becomes the
// first frame of the recording.
func (m *Machine) beginUtterance(ctx context.Context, firstFrame []byte) {
	m.followUpOpen = false
	m.recorder.Reset()
	m.vad.Reset()
	if firstFrame != nil {
		m.recorder.Append(firstFrame, true)
	}
	m.lastVoice = m.now()
	m.setState(ctx, StateActive)
	m.pend.arm(timerSilence, m.cfg.SilenceTimeout, m.newTimer)
}

// endUtterance fires when trailing silence reaches the threshold. An
// utterance with no detected speech is dropped without ceremony; otherwise
// the recording goes to the pipeline.
func (m *Machine) endUtterance(ctx context.Context) {
	m.pend.cancel()

	if m.recorder.Len() == 0 || !m.recorder.HadSpeech() {
		m.log.Debug("silence timeout with empty utterance, returning to passive")
		m.recorder.Reset()
		m.setState(ctx, StatePassive)
		return
	}

	pcm := m.recorder.Bytes()
	m.log.Info("utterance complete",
		"duration", m.recorder.Duration(), "bytes", len(pcm))
	m.recorder.Reset()
	m.sink.AcknowledgementCue()
	m.setState(ctx, StateProcessing)
	m.startPipeline(ctx, pipeline.Request{
		SessionID: m.cfg.SessionID,
		Audio:     pcm,
		Context:   m.history.Snapshot(),
	})
}

// interrupt handles a wake-phrase detection while the session is already
// engaged: the partial recording is discarded, any in-flight work is
// abandoned, the activation cue replays, and recording restarts fresh. The
// wake frame itself is consumed by the transition, and the conversation
// context is kept — interrupting does not forget the exchange so far.
func (m *Machine) interrupt(ctx context.Context, keyword string, confidence float64) {
	m.metrics.Interruptions.Add(ctx, 1)
	m.log.Info("wake phrase interruption",
		"state", m.state, "keyword", keyword, "confidence", confidence)

	if m.pipelineCancel != nil {
		m.pipelineCancel()
		m.pipelineCancel = nil
	}
	// Invalidate any result already in flight.
	m.pipelineGen++

	m.pend.cancel()
	m.sink.ActivationCue()
	m.beginUtterance(ctx, nil)
}

// startPipeline launches one pipeline run in its own goroutine. The result
// comes back through pipelineCh tagged with a generation number.
func (m *Machine) startPipeline(ctx context.Context, req pipeline.Request) {
	m.pipelineGen++
	gen := m.pipelineGen

	pctx, cancel := context.WithCancel(ctx)
	m.pipelineCancel = cancel

	go func() {
		reply, err := m.resp.Respond(pctx, req)
		select {
		case m.pipelineCh <- pipelineOutcome{gen: gen, reply: reply, err: err}:
		case <-ctx.Done():
		}
	}()
}

// handleOutcome applies a pipeline result. Stale results (from an
// interrupted run) are dropped.
func (m *Machine) handleOutcome(ctx context.Context, out pipelineOutcome) {
	if out.gen != m.pipelineGen || m.state != StateProcessing {
		m.log.Debug("dropping stale pipeline result")
		return
	}
	if m.pipelineCancel != nil {
		m.pipelineCancel()
		m.pipelineCancel = nil
	}

	if out.err != nil {
		m.log.Error("pipeline failed", "error", out.err)
		m.sink.ErrorCue()
		m.setState(ctx, StatePassive)
		return
	}

	if out.reply.NoSpeech {
		// Nothing intelligible was said. No cue, no follow-up window, no
		// context update.
		m.log.Debug("no speech in utterance, returning to passive")
		m.setState(ctx, StatePassive)
		return
	}

	turn := router.Turn{
		Utterance: out.reply.Transcript,
		Response:  out.reply.Text,
		Timestamp: m.now(),
	}
	m.history.Append(turn)
	m.saveTurn(turn)

	m.setState(ctx, StateResponding)
	m.sink.Response(out.reply)

	// Approximate playback time from the audio length; a text-only reply
	// opens the follow-up window immediately.
	d := audio.FrameDuration(pipeline.ReplySampleRate, len(out.reply.Audio))
	m.pend.arm(timerDelivery, d, m.newTimer)
}

// handleTimer dispatches the armed timer's expiry.
func (m *Machine) handleTimer(ctx context.Context) {
	kind := m.pend.kind
	m.pend.cancel()

	switch kind {
	case timerSilence:
		if m.state != StateActive {
			return
		}
		// The timer was armed at utterance start; speech since then pushes
		// the real deadline out. Re-arm for the remainder if so.
		deadline := m.lastVoice.Add(m.cfg.SilenceTimeout)
		if remaining := deadline.Sub(m.now()); remaining > 0 {
			m.pend.arm(timerSilence, remaining, m.newTimer)
			return
		}
		m.endUtterance(ctx)

	case timerDelivery:
		if m.state != StateResponding {
			return
		}
		m.setState(ctx, StatePassive)
		m.followUpOpen = true
		m.pend.arm(timerFollowUp, m.cfg.FollowUpWindow, m.newTimer)
		m.log.Debug("response delivered, follow-up window open",
			"window", m.cfg.FollowUpWindow)

	case timerFollowUp:
		m.followUpOpen = false
		m.log.Debug("follow-up window closed")
	}
}

// setState applies a transition, mirrors it for concurrent readers, and
// notifies the sink.
func (m *Machine) setState(ctx context.Context, to State) {
	if m.state == to {
		return
	}
	from := m.state
	m.state = to
	m.stateVal.Store(int32(to))
	m.metrics.RecordStateTransition(ctx, from.String(), to.String())
	m.log.Debug("state transition", "from", from, "to", to)
	m.sink.StateChanged(from, to)
}

// ─── Detection helpers ────────────────────────────────────────────────────────

// detectWake scores the frame against the wake-word model. Detector errors
// count as no detection: a flaky model must not be able to activate (or
// block) the session.
func (m *Machine) detectWake(frame []byte) (keyword string, confidence float64, ok bool) {
	scores, err := m.wake.Score(frame)
	if err != nil {
		m.log.Debug("wake detector error", "error", err)
		return "", 0, false
	}
	keyword, confidence, ok = wakeword.Best(scores)
	if !ok || confidence < m.cfg.WakeThreshold {
		return keyword, confidence, false
	}
	return keyword, confidence, true
}

// detectSpeech classifies the frame with the VAD. Errors count as silence
// for the same reason detector errors count as no wake.
func (m *Machine) detectSpeech(frame []byte) bool {
	speech, err := m.vad.IsSpeech(frame)
	if err != nil {
		m.log.Debug("vad error", "error", err)
		return false
	}
	return speech
}

// saveTurn writes the turn to the durable store off the hot path.
func (m *Machine) saveTurn(turn router.Turn) {
	if m.store == nil {
		return
	}
	sessionID := m.cfg.SessionID
	store := m.store
	log := m.log
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.SaveTurn(ctx, sessionID, turn); err != nil {
			log.Warn("failed to persist turn", "error", err)
		}
	}()
}
