package recording

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
	"time"
)

var testFormat = Format{SampleRate: 16000, Channels: 1, BitsPerSample: 16}

func pcm(n int, fill byte) []byte {
	return bytes.Repeat([]byte{fill}, n)
}

func TestEncodeDecodeWAV(t *testing.T) {
	in := WAV{Format: testFormat, PCM: pcm(3200, 7)}
	encoded := EncodeWAV(in)
	if len(encoded) != wavHeaderSize+3200 {
		t.Fatalf("unexpected encoded length %d", len(encoded))
	}
	out, err := DecodeWAV(encoded)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if out.Format != testFormat {
		t.Fatalf("format mismatch: %v", out.Format)
	}
	if !bytes.Equal(out.PCM, in.PCM) {
		t.Fatal("pcm mismatch")
	}
	if got := out.Duration(); got != 100*time.Millisecond {
		t.Fatalf("expected 100ms, got %v", got)
	}
}

func TestDecodeWAVSkipsExtraChunks(t *testing.T) {
	encoded := EncodeWAV(WAV{Format: testFormat, PCM: pcm(10, 1)})
	// Insert an odd-sized LIST chunk between fmt and data.
	var list bytes.Buffer
	list.WriteString("LIST")
	_ = binary.Write(&list, binary.LittleEndian, uint32(3))
	list.Write([]byte{'a', 'b', 'c', 0})
	withList := append([]byte{}, encoded[:36]...)
	withList = append(withList, list.Bytes()...)
	withList = append(withList, encoded[36:]...)

	out, err := DecodeWAV(withList)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if len(out.PCM) != 10 {
		t.Fatalf("expected 10 pcm bytes, got %d", len(out.PCM))
	}
}

func TestDecodeWAVRejects(t *testing.T) {
	float := EncodeWAV(WAV{Format: testFormat, PCM: pcm(4, 0)})
	binary.LittleEndian.PutUint16(float[20:22], 3)

	tests := map[string][]byte{
		"empty":     nil,
		"not riff":  []byte("OggS0000WAVEfmt "),
		"no data":   EncodeWAV(WAV{Format: testFormat})[:36],
		"float tag": float,
		"zero rate": EncodeWAV(WAV{Format: Format{Channels: 1, BitsPerSample: 16}, PCM: pcm(4, 0)}),
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := DecodeWAV(data); !errors.Is(err, ErrInvalidWAV) {
				t.Fatalf("expected ErrInvalidWAV, got %v", err)
			}
		})
	}
}

func TestMergeInsertsPauseBetweenClips(t *testing.T) {
	clips := [][]byte{
		EncodeWAV(WAV{Format: testFormat, PCM: pcm(100, 1)}),
		EncodeWAV(WAV{Format: testFormat, PCM: pcm(200, 2)}),
		EncodeWAV(WAV{Format: testFormat, PCM: pcm(300, 3)}),
	}
	merged, err := Merge(clips, 300*time.Millisecond)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	gap := 16000 * 2 * 3 / 10 // 300ms of 16-bit mono
	if want := 600 + 2*gap; len(merged.PCM) != want {
		t.Fatalf("expected %d pcm bytes, got %d", want, len(merged.PCM))
	}
	if merged.PCM[0] != 1 || merged.PCM[100] != 0 || merged.PCM[100+gap] != 2 {
		t.Fatal("clips out of order or pause missing")
	}
	if last := merged.PCM[len(merged.PCM)-1]; last != 3 {
		t.Fatalf("expected trailing clip without pause, last byte %d", last)
	}
}

func TestMergeRejectsMismatchedFormats(t *testing.T) {
	clips := [][]byte{
		EncodeWAV(WAV{Format: testFormat, PCM: pcm(10, 1)}),
		EncodeWAV(WAV{Format: Format{SampleRate: 24000, Channels: 1, BitsPerSample: 16}, PCM: pcm(10, 1)}),
	}
	if _, err := Merge(clips, 0); err == nil {
		t.Fatal("expected format mismatch error")
	}
	if _, err := Merge(nil, 0); err == nil {
		t.Fatal("expected error for no clips")
	}
}

func TestSilenceFrameAligned(t *testing.T) {
	stereo := Format{SampleRate: 44100, Channels: 2, BitsPerSample: 16}
	got := Silence(stereo, 10*time.Millisecond)
	if len(got) != 441*4 {
		t.Fatalf("expected %d bytes, got %d", 441*4, len(got))
	}
	if Silence(stereo, 0) != nil {
		t.Fatal("zero pause should produce no silence")
	}
}
