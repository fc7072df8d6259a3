package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/halcyon-voice/halcyon/internal/pipeline"
	"github.com/halcyon-voice/halcyon/pkg/provider/router"
	vadmock "github.com/halcyon-voice/halcyon/pkg/provider/vad/mock"
	wakemock "github.com/halcyon-voice/halcyon/pkg/provider/wakeword/mock"
)

// ─── Test doubles ─────────────────────────────────────────────────────────────

// fakeClock is a hand-advanced clock shared with the machine under test.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// timerLog records every timer the machine arms without ever firing any;
// tests simulate expiry by calling handleTimer directly.
type timerLog struct {
	mu    sync.Mutex
	armed []time.Duration
}

func (tl *timerLog) newTimer(d time.Duration) (<-chan time.Time, func()) {
	tl.mu.Lock()
	tl.armed = append(tl.armed, d)
	tl.mu.Unlock()
	return make(chan time.Time), func() {}
}

func (tl *timerLog) last() (time.Duration, bool) {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	if len(tl.armed) == 0 {
		return 0, false
	}
	return tl.armed[len(tl.armed)-1], true
}

// recordingSink captures every event the machine emits.
type recordingSink struct {
	mu          sync.Mutex
	transitions []string
	activations int
	acks        int
	errorCues   int
	responses   []pipeline.Reply
}

func (s *recordingSink) StateChanged(from, to State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transitions = append(s.transitions, fmt.Sprintf("%s>%s", from, to))
}

func (s *recordingSink) ActivationCue() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activations++
}

func (s *recordingSink) AcknowledgementCue() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acks++
}

func (s *recordingSink) ErrorCue() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorCues++
}

func (s *recordingSink) Response(r pipeline.Reply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, r)
}

// fakeResponder is a scripted pipeline.Responder that records requests.
type fakeResponder struct {
	mu       sync.Mutex
	script   []pipelineOutcome
	requests []pipeline.Request

	// block, when true, makes Respond wait for ctx cancellation.
	block bool
}

func (f *fakeResponder) push(reply pipeline.Reply, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script = append(f.script, pipelineOutcome{reply: reply, err: err})
}

func (f *fakeResponder) Respond(ctx context.Context, req pipeline.Request) (pipeline.Reply, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	blocked := f.block
	var next pipelineOutcome
	if len(f.script) > 0 {
		next = f.script[0]
		f.script = f.script[1:]
	} else {
		next = pipelineOutcome{reply: pipeline.Reply{Transcript: "hi", Text: "hello"}}
	}
	f.mu.Unlock()

	if blocked {
		<-ctx.Done()
		return pipeline.Reply{}, ctx.Err()
	}
	return next.reply, next.err
}

func (f *fakeResponder) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeResponder) lastRequest(t *testing.T) pipeline.Request {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		t.Fatal("no pipeline requests recorded")
	}
	return f.requests[len(f.requests)-1]
}

// ─── Harness ──────────────────────────────────────────────────────────────────

type harness struct {
	m      *Machine
	wake   *wakemock.Detector
	vad    *vadmock.Session
	resp   *fakeResponder
	sink   *recordingSink
	clock  *fakeClock
	timers *timerLog
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		wake:   wakemock.New(),
		vad:    &vadmock.Session{},
		resp:   &fakeResponder{},
		sink:   &recordingSink{},
		clock:  newFakeClock(),
		timers: &timerLog{},
	}
	m, err := New(Config{
		SessionID:      "test-session",
		WakeThreshold:  0.5,
		SilenceTimeout: 3 * time.Second,
		FollowUpWindow: 10 * time.Second,
		ContextTurns:   10,
	}, Deps{
		Wake:      h.wake,
		VAD:       h.vad,
		Responder: h.resp,
		Sink:      h.sink,
		Now:       h.clock.Now,
		NewTimer:  h.timers.newTimer,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.m = m
	t.Cleanup(func() {
		if m.pipelineCancel != nil {
			m.pipelineCancel()
		}
	})
	return h
}

// feed drives one frame through the per-frame algorithm synchronously.
func (h *harness) feed(t *testing.T, frame []byte) {
	t.Helper()
	h.m.handleFrame(context.Background(), frame)
}

// wakeUp scripts a confident wake score and feeds a frame carrying it.
func (h *harness) wakeUp(t *testing.T) {
	t.Helper()
	h.wake.Push(map[string]float64{"halcyon": 0.9})
	h.feed(t, []byte{0xAA, 0xAA})
}

// awaitOutcome collects the pipeline result and applies it.
func (h *harness) awaitOutcome(t *testing.T) {
	t.Helper()
	select {
	case out := <-h.m.pipelineCh:
		h.m.handleOutcome(context.Background(), out)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for pipeline outcome")
	}
}

// expireTimer simulates the armed timer firing.
func (h *harness) expireTimer(t *testing.T) {
	t.Helper()
	h.m.handleTimer(context.Background())
}

func (h *harness) wantState(t *testing.T, want State) {
	t.Helper()
	if got := h.m.State(); got != want {
		t.Fatalf("state = %v, want %v", got, want)
	}
}

// ─── Scenario: simple exchange ────────────────────────────────────────────────

func TestSimpleExchange(t *testing.T) {
	h := newHarness(t)
	h.resp.push(pipeline.Reply{Transcript: "what time is it", Text: "noon"}, nil)

	h.wantState(t, StatePassive)

	// Wake phrase activates and plays the cue.
	h.wakeUp(t)
	h.wantState(t, StateActive)
	if h.sink.activations != 1 {
		t.Fatalf("activations = %d, want 1", h.sink.activations)
	}

	// Two speech frames, then 3s of silence.
	h.vad.Default = true
	h.feed(t, []byte{1, 1})
	h.feed(t, []byte{2, 2})
	h.vad.Default = false
	h.clock.Advance(3 * time.Second)
	h.expireTimer(t)

	h.wantState(t, StateProcessing)
	if h.sink.acks != 1 {
		t.Fatalf("acknowledgement cues = %d, want 1", h.sink.acks)
	}
	h.awaitOutcome(t)

	h.wantState(t, StateResponding)
	if len(h.sink.responses) != 1 || h.sink.responses[0].Text != "noon" {
		t.Fatalf("responses = %+v, want one with text noon", h.sink.responses)
	}

	// Delivery finishes; the follow-up window opens.
	h.expireTimer(t)
	h.wantState(t, StatePassive)
	if !h.m.followUpOpen {
		t.Fatal("follow-up window should be open after delivery")
	}
	if d, ok := h.timers.last(); !ok || d != 10*time.Second {
		t.Fatalf("follow-up timer armed for %v, want 10s", d)
	}

	// Window closes; the wake phrase is required again.
	h.expireTimer(t)
	if h.m.followUpOpen {
		t.Fatal("follow-up window should be closed after expiry")
	}
	h.vad.Default = true
	h.feed(t, []byte{3, 3})
	h.wantState(t, StatePassive)
}

// ─── Scenario: wake frame is not recorded ─────────────────────────────────────

func TestWakeFrameExcludedFromUtterance(t *testing.T) {
	h := newHarness(t)
	h.resp.push(pipeline.Reply{Transcript: "x", Text: "y"}, nil)

	h.wakeUp(t)

	h.vad.Default = true
	h.feed(t, []byte{1, 1})
	h.feed(t, []byte{2, 2})
	h.vad.Default = false
	h.clock.Advance(3 * time.Second)
	h.expireTimer(t)
	h.awaitOutcome(t)

	got := h.resp.lastRequest(t).Audio
	want := []byte{1, 1, 2, 2}
	if !bytes.Equal(got, want) {
		t.Fatalf("pipeline audio = %v, want %v (wake frame must not leak in)", got, want)
	}
}

// ─── Scenario: interruption ───────────────────────────────────────────────────

func TestWakeDuringActiveRestartsUtterance(t *testing.T) {
	h := newHarness(t)
	h.resp.push(pipeline.Reply{Transcript: "x", Text: "y"}, nil)

	h.wakeUp(t)
	h.vad.Default = true
	h.feed(t, []byte{1, 1})
	h.feed(t, []byte{2, 2})
	h.vad.Default = false

	// The wake phrase fires again mid-utterance.
	h.wake.Push(map[string]float64{"halcyon": 0.9})
	h.feed(t, []byte{3, 3})

	h.wantState(t, StateActive)
	if h.sink.activations != 2 {
		t.Fatalf("activations = %d, want 2 (wake + interruption)", h.sink.activations)
	}
	if got := h.m.recorder.Len(); got != 0 {
		t.Fatalf("recorder holds %d bytes, want 0 right after the second wake", got)
	}
	if h.sink.acks != 0 {
		t.Fatalf("acknowledgement cues = %d, want 0 (no utterance completed yet)", h.sink.acks)
	}
	if d, ok := h.timers.last(); !ok || d != 3*time.Second {
		t.Fatalf("silence timer re-armed for %v, want 3s", d)
	}

	// Only speech after the interruption reaches the pipeline.
	h.vad.Default = true
	h.feed(t, []byte{4, 4})
	h.vad.Default = false
	h.clock.Advance(3 * time.Second)
	h.expireTimer(t)
	h.awaitOutcome(t)

	got := h.resp.lastRequest(t).Audio
	if !bytes.Equal(got, []byte{4, 4}) {
		t.Fatalf("pipeline audio = %v, want %v (utterances must never merge)", got, []byte{4, 4})
	}
}

func TestInterruptionDuringProcessing(t *testing.T) {
	h := newHarness(t)
	h.resp.block = true

	// Seed one completed turn so we can verify interruption keeps context.
	h.m.history.Append(turnFixture("earlier", "reply"))

	h.wakeUp(t)
	h.vad.Default = true
	h.feed(t, []byte{1, 1})
	h.vad.Default = false
	h.clock.Advance(3 * time.Second)
	h.expireTimer(t)
	h.wantState(t, StateProcessing)

	// The user says the wake phrase over the assistant.
	h.wake.Push(map[string]float64{"halcyon": 0.95})
	h.feed(t, []byte{9, 9})

	h.wantState(t, StateActive)
	if h.sink.activations != 2 {
		t.Fatalf("activations = %d, want 2 (wake + interruption)", h.sink.activations)
	}
	if got := h.m.recorder.Len(); got != 0 {
		t.Fatalf("recorder holds %d bytes, want 0 (wake frame is consumed)", got)
	}
	if h.m.history.Len() != 1 {
		t.Fatalf("history len = %d, want 1 (interruption keeps context)", h.m.history.Len())
	}

	// Fresh speech starts the new recording.
	h.vad.Default = true
	h.feed(t, []byte{8, 8})
	if got := h.m.recorder.Bytes(); !bytes.Equal(got, []byte{8, 8}) {
		t.Fatalf("recorder = %v, want only frames after the interruption", got)
	}

	// The cancelled pipeline's result must be dropped.
	select {
	case out := <-h.m.pipelineCh:
		h.m.handleOutcome(context.Background(), out)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled pipeline never reported back")
	}
	h.wantState(t, StateActive)
	if len(h.sink.responses) != 0 {
		t.Fatalf("responses = %d, want 0 (stale result must be dropped)", len(h.sink.responses))
	}
	if h.sink.errorCues != 0 {
		t.Fatalf("errorCues = %d, want 0 (cancellation is not a failure)", h.sink.errorCues)
	}
}

func TestInterruptionDuringResponding(t *testing.T) {
	h := newHarness(t)
	h.resp.push(pipeline.Reply{Transcript: "a", Text: "b", Audio: make([]byte, 48000)}, nil)

	h.wakeUp(t)
	h.vad.Default = true
	h.feed(t, []byte{1, 1})
	h.vad.Default = false
	h.clock.Advance(3 * time.Second)
	h.expireTimer(t)
	h.awaitOutcome(t)
	h.wantState(t, StateResponding)

	h.wake.Push(map[string]float64{"halcyon": 0.9})
	h.feed(t, []byte{7, 7})
	h.wantState(t, StateActive)
	if h.sink.activations != 2 {
		t.Fatalf("activations = %d, want 2", h.sink.activations)
	}
}

func TestSpeechWithoutWakeDoesNotInterrupt(t *testing.T) {
	h := newHarness(t)
	h.resp.block = true

	h.wakeUp(t)
	h.vad.Default = true
	h.feed(t, []byte{1, 1})
	h.vad.Default = false
	h.clock.Advance(3 * time.Second)
	h.expireTimer(t)
	h.wantState(t, StateProcessing)

	// Ambient speech while the pipeline runs must not cancel the request.
	h.vad.Default = true
	h.feed(t, []byte{9, 9})
	h.feed(t, []byte{9, 9})

	h.wantState(t, StateProcessing)
	if h.sink.activations != 1 {
		t.Fatalf("activations = %d, want 1 (speech alone is not a barge-in)", h.sink.activations)
	}
	if h.resp.requestCount() != 1 {
		t.Fatalf("pipeline requests = %d, want 1", h.resp.requestCount())
	}
}

// ─── Scenario: follow-up ──────────────────────────────────────────────────────

func TestFollowUpContinuesWithoutWake(t *testing.T) {
	h := newHarness(t)
	h.resp.push(pipeline.Reply{Transcript: "first", Text: "one"}, nil)
	h.resp.push(pipeline.Reply{Transcript: "second", Text: "two"}, nil)

	// First exchange.
	h.wakeUp(t)
	h.vad.Default = true
	h.feed(t, []byte{1, 1})
	h.vad.Default = false
	h.clock.Advance(3 * time.Second)
	h.expireTimer(t)
	h.awaitOutcome(t)
	h.expireTimer(t) // delivery done, follow-up open
	h.wantState(t, StatePassive)

	// Speech inside the window continues without wake or cue.
	h.vad.Default = true
	h.feed(t, []byte{5, 5})
	h.wantState(t, StateActive)
	if h.sink.activations != 1 {
		t.Fatalf("activations = %d, want 1 (no cue on follow-up)", h.sink.activations)
	}

	h.vad.Default = false
	h.clock.Advance(3 * time.Second)
	h.expireTimer(t)
	h.awaitOutcome(t)

	// The second request must carry the first turn as context.
	req := h.resp.lastRequest(t)
	if len(req.Context) != 1 || req.Context[0].Utterance != "first" {
		t.Fatalf("second request context = %+v, want the first turn", req.Context)
	}
	if h.m.history.Len() != 2 {
		t.Fatalf("history len = %d, want 2", h.m.history.Len())
	}
}

// ─── Properties ───────────────────────────────────────────────────────────────

func TestLowConfidenceWakeIgnored(t *testing.T) {
	h := newHarness(t)
	h.wake.Push(map[string]float64{"halcyon": 0.4})
	h.feed(t, []byte{1, 1})
	h.wantState(t, StatePassive)
	if h.sink.activations != 0 {
		t.Fatalf("activations = %d, want 0", h.sink.activations)
	}
}

func TestWakeDetectorErrorTreatedAsNoDetection(t *testing.T) {
	h := newHarness(t)
	h.wake.PushErr(errors.New("model crashed"))
	h.feed(t, []byte{1, 1})
	h.wantState(t, StatePassive)
}

func TestEmptyUtteranceReturnsToPassiveSilently(t *testing.T) {
	h := newHarness(t)

	h.wakeUp(t)
	// Only silence follows the wake.
	h.feed(t, []byte{0, 0})
	h.clock.Advance(3 * time.Second)
	h.expireTimer(t)

	h.wantState(t, StatePassive)
	if h.resp.requestCount() != 0 {
		t.Fatalf("pipeline ran %d times, want 0 for an empty utterance", h.resp.requestCount())
	}
	if h.sink.errorCues != 0 {
		t.Fatalf("errorCues = %d, want 0", h.sink.errorCues)
	}
	if h.m.followUpOpen {
		t.Fatal("empty utterance must not open a follow-up window")
	}
}

func TestNoSpeechReplyReturnsToPassiveSilently(t *testing.T) {
	h := newHarness(t)
	h.resp.push(pipeline.Reply{NoSpeech: true}, nil)

	h.wakeUp(t)
	h.vad.Default = true
	h.feed(t, []byte{1, 1})
	h.vad.Default = false
	h.clock.Advance(3 * time.Second)
	h.expireTimer(t)
	h.awaitOutcome(t)

	h.wantState(t, StatePassive)
	if len(h.sink.responses) != 0 {
		t.Fatalf("responses = %d, want 0", len(h.sink.responses))
	}
	if h.m.followUpOpen {
		t.Fatal("no-speech reply must not open a follow-up window")
	}
	if h.m.history.Len() != 0 {
		t.Fatalf("history len = %d, want 0", h.m.history.Len())
	}
}

func TestPipelineFailurePlaysErrorCue(t *testing.T) {
	h := newHarness(t)
	h.resp.push(pipeline.Reply{}, errors.New("backend down"))

	h.wakeUp(t)
	h.vad.Default = true
	h.feed(t, []byte{1, 1})
	h.vad.Default = false
	h.clock.Advance(3 * time.Second)
	h.expireTimer(t)
	h.awaitOutcome(t)

	h.wantState(t, StatePassive)
	if h.sink.errorCues != 1 {
		t.Fatalf("errorCues = %d, want 1", h.sink.errorCues)
	}
	if h.m.followUpOpen {
		t.Fatal("pipeline failure must not open a follow-up window")
	}
	if h.m.history.Len() != 0 {
		t.Fatalf("history len = %d, want 0 after failure", h.m.history.Len())
	}
}

func TestSpeechExtendsSilenceDeadline(t *testing.T) {
	h := newHarness(t)

	h.wakeUp(t)
	h.vad.Default = true
	h.feed(t, []byte{1, 1})

	// 2s pass, then more speech. The original timer expires but the
	// deadline has moved, so the machine re-arms instead of ending.
	h.clock.Advance(2 * time.Second)
	h.feed(t, []byte{2, 2})
	h.clock.Advance(1 * time.Second)
	h.vad.Default = false
	h.expireTimer(t)

	h.wantState(t, StateActive)
	if d, ok := h.timers.last(); !ok || d != 2*time.Second {
		t.Fatalf("re-armed for %v, want 2s remainder", d)
	}
}

func TestTextInputBypassesTranscription(t *testing.T) {
	h := newHarness(t)
	h.resp.push(pipeline.Reply{Transcript: "what time is it", Text: "noon"}, nil)

	h.m.handleText(context.Background(), "what time is it")
	h.wantState(t, StateProcessing)
	h.awaitOutcome(t)

	req := h.resp.lastRequest(t)
	if req.Text != "what time is it" {
		t.Fatalf("request text = %q, want the typed utterance", req.Text)
	}
	if len(req.Audio) != 0 {
		t.Fatalf("request audio = %d bytes, want 0", len(req.Audio))
	}
	h.wantState(t, StateResponding)
}

func TestRunLoopEndToEnd(t *testing.T) {
	h := newHarness(t)
	h.resp.push(pipeline.Reply{Transcript: "hello", Text: "hi there"}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.m.Run(ctx) }()

	h.wake.Push(map[string]float64{"halcyon": 0.9})
	if err := h.m.Ingest(ctx, []byte{0xAA, 0xAA}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	waitForState(t, h.m, StateActive)

	h.vad.Default = true
	if err := h.m.Ingest(ctx, []byte{1, 1}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	h.vad.Default = false
	h.clock.Advance(3 * time.Second)
	// A trailing silent frame lets the loop notice the elapsed silence
	// without relying on the (fake) timer.
	if err := h.m.Ingest(ctx, []byte{0, 0}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	waitForState(t, h.m, StateResponding)

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

func turnFixture(utterance, response string) router.Turn {
	return router.Turn{
		Utterance: utterance,
		Response:  response,
		Timestamp: time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC),
	}
}

func waitForState(t *testing.T, m *Machine, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("state = %v, want %v", m.State(), want)
}
