package audio

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"
	"time"
)

func TestInt16sBytesRoundTrip(t *testing.T) {
	in := []int16{0, 1, -1, 32767, -32768, 12345}
	got := BytesToInt16s(Int16sToBytes(in))
	if len(got) != len(in) {
		t.Fatalf("len = %d, want %d", len(got), len(in))
	}
	for i := range in {
		if got[i] != in[i] {
			t.Errorf("sample %d = %d, want %d", i, got[i], in[i])
		}
	}
}

func TestBytesToInt16sIgnoresTrailingByte(t *testing.T) {
	got := BytesToInt16s([]byte{0x01, 0x00, 0xFF})
	if len(got) != 1 || got[0] != 1 {
		t.Fatalf("got %v, want [1]", got)
	}
}

func TestRMS(t *testing.T) {
	if got := RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %v, want 0", got)
	}

	// A constant-amplitude signal has RMS equal to the amplitude.
	pcm := Int16sToBytes([]int16{1000, 1000, 1000, 1000})
	if got := RMS(pcm); math.Abs(got-1000) > 0.01 {
		t.Errorf("RMS = %v, want 1000", got)
	}

	// Sign does not matter.
	alternating := Int16sToBytes([]int16{500, -500, 500, -500})
	if got := RMS(alternating); math.Abs(got-500) > 0.01 {
		t.Errorf("RMS = %v, want 500", got)
	}
}

func TestStereoToMono(t *testing.T) {
	stereo := Int16sToBytes([]int16{100, 200, -100, 300})
	mono := BytesToInt16s(StereoToMono(stereo))
	want := []int16{150, 100}
	if len(mono) != len(want) {
		t.Fatalf("len = %d, want %d", len(mono), len(want))
	}
	for i := range want {
		if mono[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, mono[i], want[i])
		}
	}
}

func TestResampleMono16SameRatePassthrough(t *testing.T) {
	in := Int16sToBytes([]int16{1, 2, 3})
	out := ResampleMono16(in, 16000, 16000)
	if !bytes.Equal(out, in) {
		t.Error("same-rate resample should return the input unchanged")
	}
}

func TestResampleMono16Downsample(t *testing.T) {
	// 10 ms at 48 kHz down to 16 kHz: 480 samples → 160.
	in := make([]byte, 480*2)
	out := ResampleMono16(in, 48000, 16000)
	if len(out) != 160*2 {
		t.Errorf("output = %d bytes, want %d", len(out), 160*2)
	}
}

func TestResampleMono16Upsample(t *testing.T) {
	in := Int16sToBytes([]int16{0, 1000})
	out := BytesToInt16s(ResampleMono16(in, 8000, 16000))
	if len(out) != 4 {
		t.Fatalf("len = %d, want 4", len(out))
	}
	// Linear interpolation between 0 and 1000 must stay in range and be
	// monotonic.
	for i := 1; i < len(out); i++ {
		if out[i] < out[i-1] {
			t.Errorf("interpolated output not monotonic: %v", out)
			break
		}
	}
}

func TestFrameDuration(t *testing.T) {
	if got := FrameDuration(16000, 32000); got != time.Second {
		t.Errorf("FrameDuration(16000, 32000) = %v, want 1s", got)
	}
	if got := FrameDuration(24000, 48000); got != time.Second {
		t.Errorf("FrameDuration(24000, 48000) = %v, want 1s", got)
	}
	if got := FrameDuration(16000, 0); got != 0 {
		t.Errorf("FrameDuration(16000, 0) = %v, want 0", got)
	}
}

func TestEncodeWAVHeader(t *testing.T) {
	pcm := Int16sToBytes([]int16{1, 2, 3, 4})
	wav := EncodeWAV(pcm, 16000, 1)

	if len(wav) != 44+len(pcm) {
		t.Fatalf("len = %d, want %d", len(wav), 44+len(pcm))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Fatalf("bad container magic: %q %q", wav[0:4], wav[8:12])
	}
	if rate := binary.LittleEndian.Uint32(wav[24:28]); rate != 16000 {
		t.Errorf("sample rate = %d, want 16000", rate)
	}
	if ch := binary.LittleEndian.Uint16(wav[22:24]); ch != 1 {
		t.Errorf("channels = %d, want 1", ch)
	}
	if size := binary.LittleEndian.Uint32(wav[40:44]); size != uint32(len(pcm)) {
		t.Errorf("data size = %d, want %d", size, len(pcm))
	}
	if !bytes.Equal(wav[44:], pcm) {
		t.Error("payload does not match the input PCM")
	}
}
