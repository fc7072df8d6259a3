package pipeline

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/halcyon-voice/halcyon/pkg/provider/router"
	routermock "github.com/halcyon-voice/halcyon/pkg/provider/router/mock"
	sttmock "github.com/halcyon-voice/halcyon/pkg/provider/stt/mock"
	ttsmock "github.com/halcyon-voice/halcyon/pkg/provider/tts/mock"
)

func TestRespondSuccess(t *testing.T) {
	sttP := sttmock.New()
	sttP.Push("what time is it")
	routerP := routermock.New()
	routerP.Push("it is noon")
	ttsP := ttsmock.New()

	p := New(sttP, routerP, ttsP)
	reply, err := p.Respond(context.Background(), Request{
		SessionID: "s1",
		Audio:     []byte{1, 2, 3, 4},
	})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if reply.Transcript != "what time is it" {
		t.Errorf("Transcript = %q, want %q", reply.Transcript, "what time is it")
	}
	if reply.Text != "it is noon" {
		t.Errorf("Text = %q, want %q", reply.Text, "it is noon")
	}
	if !bytes.Equal(reply.Audio, []byte("it is noon")) {
		t.Errorf("Audio = %q, want the synthesized reply", reply.Audio)
	}
	if reply.NoSpeech {
		t.Error("NoSpeech = true, want false")
	}

	inputs := sttP.Inputs()
	if len(inputs) != 1 || !bytes.Equal(inputs[0], []byte{1, 2, 3, 4}) {
		t.Errorf("STT inputs = %v, want the request audio", inputs)
	}
}

func TestRespondTextInputSkipsTranscription(t *testing.T) {
	sttP := sttmock.New()
	routerP := routermock.New()
	routerP.Push("hello back")
	ttsP := ttsmock.New()

	p := New(sttP, routerP, ttsP)
	reply, err := p.Respond(context.Background(), Request{
		SessionID: "s1",
		Text:      "hello",
		Audio:     []byte{9, 9}, // must be ignored
	})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if len(sttP.Inputs()) != 0 {
		t.Errorf("Transcribe called %d times, want 0 for text input", len(sttP.Inputs()))
	}
	if reply.Transcript != "hello" {
		t.Errorf("Transcript = %q, want the typed text", reply.Transcript)
	}
	if reply.Text != "hello back" {
		t.Errorf("Text = %q, want %q", reply.Text, "hello back")
	}
}

func TestRespondContextForwardedToRouter(t *testing.T) {
	sttP := sttmock.New()
	sttP.Push("and tomorrow?")
	routerP := routermock.New()
	ttsP := ttsmock.New()

	turns := []router.Turn{
		{Utterance: "weather today?", Response: "sunny", Timestamp: time.Now()},
	}
	p := New(sttP, routerP, ttsP)
	if _, err := p.Respond(context.Background(), Request{
		SessionID: "s1",
		Audio:     []byte{1},
		Context:   turns,
	}); err != nil {
		t.Fatalf("Respond: %v", err)
	}

	reqs := routerP.Requests()
	if len(reqs) != 1 {
		t.Fatalf("router requests = %d, want 1", len(reqs))
	}
	if len(reqs[0].Context) != 1 || reqs[0].Context[0].Utterance != "weather today?" {
		t.Errorf("router context = %+v, want the conversation turn", reqs[0].Context)
	}
}

func TestRespondEmptyTranscriptIsNoSpeech(t *testing.T) {
	sttP := sttmock.New()
	sttP.Push("   ") // whitespace-only transcript
	routerP := routermock.New()
	ttsP := ttsmock.New()

	p := New(sttP, routerP, ttsP)
	reply, err := p.Respond(context.Background(), Request{Audio: []byte{1}})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if !reply.NoSpeech {
		t.Error("NoSpeech = false, want true")
	}
	if len(routerP.Requests()) != 0 {
		t.Errorf("router called %d times, want 0 for no-speech", len(routerP.Requests()))
	}
}

func TestRespondTranscribeError(t *testing.T) {
	sttP := sttmock.New()
	sttErr := errors.New("model not loaded")
	sttP.PushErr(sttErr)

	p := New(sttP, routermock.New(), ttsmock.New())
	_, err := p.Respond(context.Background(), Request{Audio: []byte{1}})
	if !errors.Is(err, sttErr) {
		t.Fatalf("err = %v, want wrapped %v", err, sttErr)
	}
}

func TestRespondRouteError(t *testing.T) {
	sttP := sttmock.New()
	sttP.Push("hi")
	routerP := routermock.New()
	routeErr := errors.New("backend unavailable")
	routerP.PushErr(routeErr)

	p := New(sttP, routerP, ttsmock.New())
	_, err := p.Respond(context.Background(), Request{Audio: []byte{1}})
	if !errors.Is(err, routeErr) {
		t.Fatalf("err = %v, want wrapped %v", err, routeErr)
	}
}

func TestRespondSynthesisFailureDegradesToTextOnly(t *testing.T) {
	sttP := sttmock.New()
	sttP.Push("hi")
	routerP := routermock.New()
	routerP.Push("hello")
	ttsP := ttsmock.New()
	ttsP.Err = errors.New("voice service down")

	p := New(sttP, routerP, ttsP)
	reply, err := p.Respond(context.Background(), Request{Audio: []byte{1}})
	if err != nil {
		t.Fatalf("Respond: %v (synthesis failure must not fail the exchange)", err)
	}
	if reply.Text != "hello" {
		t.Errorf("Text = %q, want %q", reply.Text, "hello")
	}
	if reply.Audio != nil {
		t.Errorf("Audio = %v, want nil for degraded reply", reply.Audio)
	}
}

func TestRespondHonorsTimeout(t *testing.T) {
	sttP := sttmock.New()
	sttP.Push("hi")
	routerP := &stallRouter{}

	p := New(sttP, routerP, ttsmock.New(), WithTimeout(20*time.Millisecond))
	_, err := p.Respond(context.Background(), Request{Audio: []byte{1}})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
}

// stallRouter blocks until the pipeline deadline expires.
type stallRouter struct{}

func (stallRouter) Route(ctx context.Context, _ router.Request) (router.Response, error) {
	<-ctx.Done()
	return router.Response{}, ctx.Err()
}
