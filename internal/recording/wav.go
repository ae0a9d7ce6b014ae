package recording

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

const (
	wavHeaderSize = 44
	pcmFormatTag  = 1
)

// ErrInvalidWAV reports audio that is not a PCM RIFF/WAVE file.
var ErrInvalidWAV = errors.New("invalid wav data")

// Format describes the PCM layout of a WAV stream.
type Format struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

func (f Format) blockAlign() int {
	return f.Channels * f.BitsPerSample / 8
}

func (f Format) bytesPerSecond() int {
	return f.SampleRate * f.blockAlign()
}

func (f Format) String() string {
	return fmt.Sprintf("%d Hz/%d ch/%d bit", f.SampleRate, f.Channels, f.BitsPerSample)
}

// WAV is decoded PCM audio.
type WAV struct {
	Format Format
	PCM    []byte
}

// Duration returns the playback length of the PCM payload.
func (w WAV) Duration() time.Duration {
	bps := w.Format.bytesPerSecond()
	if bps <= 0 {
		return 0
	}
	return time.Duration(int64(len(w.PCM)) * int64(time.Second) / int64(bps))
}

// DecodeWAV parses a RIFF/WAVE file, skipping chunks other than fmt and data.
func DecodeWAV(data []byte) (WAV, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return WAV{}, fmt.Errorf("%w: missing RIFF/WAVE header", ErrInvalidWAV)
	}
	var (
		out      WAV
		haveFmt  bool
		haveData bool
	)
	offset := 12
	for offset+8 <= len(data) {
		id := string(data[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8
		end := body + size
		if end > len(data) {
			// Streaming encoders sometimes leave the data size unset.
			if id == "data" {
				end = len(data)
			} else {
				return WAV{}, fmt.Errorf("%w: chunk %q overruns file", ErrInvalidWAV, id)
			}
		}
		switch id {
		case "fmt ":
			if end-body < 16 {
				return WAV{}, fmt.Errorf("%w: short fmt chunk", ErrInvalidWAV)
			}
			tag := binary.LittleEndian.Uint16(data[body : body+2])
			if tag != pcmFormatTag {
				return WAV{}, fmt.Errorf("%w: unsupported format tag %d", ErrInvalidWAV, tag)
			}
			out.Format = Format{
				Channels:      int(binary.LittleEndian.Uint16(data[body+2 : body+4])),
				SampleRate:    int(binary.LittleEndian.Uint32(data[body+4 : body+8])),
				BitsPerSample: int(binary.LittleEndian.Uint16(data[body+14 : body+16])),
			}
			haveFmt = true
		case "data":
			out.PCM = data[body:end]
			haveData = true
		}
		// Chunks are word aligned.
		offset = end + end%2
	}
	if !haveFmt || !haveData {
		return WAV{}, fmt.Errorf("%w: fmt or data chunk missing", ErrInvalidWAV)
	}
	if out.Format.SampleRate <= 0 || out.Format.Channels <= 0 || out.Format.BitsPerSample <= 0 || out.Format.BitsPerSample%8 != 0 {
		return WAV{}, fmt.Errorf("%w: unusable format %s", ErrInvalidWAV, out.Format)
	}
	return out, nil
}

// EncodeWAV writes a canonical 44-byte-header PCM WAV file.
func EncodeWAV(w WAV) []byte {
	var buf bytes.Buffer
	buf.Grow(wavHeaderSize + len(w.PCM))
	le := binary.LittleEndian
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, le, uint32(36+len(w.PCM)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(&buf, le, uint32(16))
	_ = binary.Write(&buf, le, uint16(pcmFormatTag))
	_ = binary.Write(&buf, le, uint16(w.Format.Channels))
	_ = binary.Write(&buf, le, uint32(w.Format.SampleRate))
	_ = binary.Write(&buf, le, uint32(w.Format.bytesPerSecond()))
	_ = binary.Write(&buf, le, uint16(w.Format.blockAlign()))
	_ = binary.Write(&buf, le, uint16(w.Format.BitsPerSample))
	buf.WriteString("data")
	_ = binary.Write(&buf, le, uint32(len(w.PCM)))
	buf.Write(w.PCM)
	return buf.Bytes()
}

// Silence returns zeroed PCM covering d, rounded down to whole frames.
func Silence(f Format, d time.Duration) []byte {
	if d <= 0 || f.blockAlign() <= 0 {
		return nil
	}
	frames := int64(f.SampleRate) * int64(d) / int64(time.Second)
	return make([]byte, frames*int64(f.blockAlign()))
}

// Merge concatenates clips in order with pause of silence between consecutive
// clips. All clips must share one PCM format.
func Merge(clips [][]byte, pause time.Duration) (WAV, error) {
	if len(clips) == 0 {
		return WAV{}, errors.New("merge: no clips")
	}
	decoded := make([]WAV, 0, len(clips))
	total := 0
	for i, clip := range clips {
		w, err := DecodeWAV(clip)
		if err != nil {
			return WAV{}, fmt.Errorf("merge: clip %d: %w", i+1, err)
		}
		if i > 0 && w.Format != decoded[0].Format {
			return WAV{}, fmt.Errorf("merge: clip %d format %s differs from %s", i+1, w.Format, decoded[0].Format)
		}
		decoded = append(decoded, w)
		total += len(w.PCM)
	}
	format := decoded[0].Format
	gap := Silence(format, pause)
	pcm := make([]byte, 0, total+len(gap)*(len(decoded)-1))
	for i, w := range decoded {
		if i > 0 {
			pcm = append(pcm, gap...)
		}
		pcm = append(pcm, w.PCM...)
	}
	return WAV{Format: format, PCM: pcm}, nil
}
