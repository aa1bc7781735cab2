package livevoice

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Audio processing constants and utilities

// DefaultChunkMS is the recommended chunk size for streaming audio (200ms).
const DefaultChunkMS = 200

// DefaultInputSampleRate is the rate the service expects for microphone audio.
const DefaultInputSampleRate = 16000

// DefaultOutputSampleRate is the rate of synthesized speech returned by the service.
const DefaultOutputSampleRate = 24000

// AudioChunk is one unit of outbound audio. Build it with NewAudioChunk so the
// chunk owns its bytes; the pumps never modify a chunk once it is submitted.
type AudioChunk struct {
	MimeType string
	Data     []byte
}

// NewAudioChunk copies data into a new chunk. An empty mimeType selects
// DefaultAudioMIMEType.
func NewAudioChunk(mimeType string, data []byte) AudioChunk {
	if mimeType == "" {
		mimeType = DefaultAudioMIMEType
	}
	return AudioChunk{MimeType: mimeType, Data: append([]byte{}, data...)}
}

// PCM16BytesFor calculates the number of bytes needed for mono PCM16 audio of given duration.
// Formula: (milliseconds * sampleRate * 2 bytes per sample) / 1000
func PCM16BytesFor(ms int, sampleRate int) int { return (ms * sampleRate * 2) / 1000 }

// ChunkPCM splits pcm into chunks of at most chunkBytes, rounded down to a
// whole sample. The last chunk may be shorter.
func ChunkPCM(pcm []byte, chunkBytes int, mimeType string) []AudioChunk {
	if chunkBytes < 2 {
		chunkBytes = 2
	}
	chunkBytes -= chunkBytes % 2
	out := make([]AudioChunk, 0, len(pcm)/chunkBytes+1)
	for off := 0; off < len(pcm); off += chunkBytes {
		end := min(off+chunkBytes, len(pcm))
		out = append(out, NewAudioChunk(mimeType, pcm[off:end]))
	}
	return out
}

// ChunkSource feeds chunks into a channel, sleeping interval between sends to
// approximate real-time capture. The channel is closed after the last chunk
// or when ctx is done.
func ChunkSource(ctx context.Context, chunks []AudioChunk, interval time.Duration) <-chan AudioChunk {
	out := make(chan AudioChunk)
	go func() {
		defer close(out)
		for i, c := range chunks {
			if i > 0 && interval > 0 {
				t := time.NewTimer(interval)
				select {
				case <-ctx.Done():
					t.Stop()
					return
				case <-t.C:
				}
			}
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// AudioAssembler collects streamed audio fragments and reassembles them into
// complete per-turn audio.
type AudioAssembler struct {
	buf   []byte
	turns [][]byte
}

// NewAudioAssembler creates a new AudioAssembler instance.
func NewAudioAssembler() *AudioAssembler { return &AudioAssembler{} }

// Add consumes one event. Audio fragments are appended to the current turn;
// a TurnComplete event seals it.
func (a *AudioAssembler) Add(ev Event) {
	switch ev.Kind {
	case EventAudioFragment:
		a.buf = append(a.buf, ev.Audio...)
	case EventTurnComplete:
		a.seal()
	}
}

func (a *AudioAssembler) seal() {
	if len(a.buf) == 0 {
		return
	}
	a.turns = append(a.turns, a.buf)
	a.buf = nil
}

// Turns returns the audio of every sealed turn, oldest first.
func (a *AudioAssembler) Turns() [][]byte { return a.turns }

// Bytes returns all audio received so far, including an unsealed tail.
func (a *AudioAssembler) Bytes() []byte {
	var out []byte
	for _, t := range a.turns {
		out = append(out, t...)
	}
	return append(out, a.buf...)
}

// PCM16ToInts converts 16-bit little-endian PCM to samples. A trailing odd
// byte is ignored.
func PCM16ToInts(pcm []byte) []int {
	out := make([]int, len(pcm)/2)
	for i := range out {
		out[i] = int(int16(binary.LittleEndian.Uint16(pcm[2*i:])))
	}
	return out
}

// IntsToPCM16 converts samples to 16-bit little-endian PCM, clipping values
// outside the int16 range.
func IntsToPCM16(samples []int) []byte {
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		s = max(min(s, 32767), -32768)
		binary.LittleEndian.PutUint16(out[2*i:], uint16(int16(s)))
	}
	return out
}

// ReadWAV decodes a 16-bit PCM WAV file and returns its first channel as mono
// PCM16 along with the sample rate.
func ReadWAV(r io.ReadSeeker) (pcm []byte, sampleRate int, err error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, 0, errors.New("livevoice: not a valid WAV file")
	}
	if d.BitDepth != 16 {
		return nil, 0, fmt.Errorf("livevoice: unsupported WAV bit depth %d, want 16", d.BitDepth)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("livevoice: read WAV: %w", err)
	}
	samples := buf.Data
	if ch := int(d.NumChans); ch > 1 {
		mono := make([]int, 0, len(samples)/ch)
		for i := 0; i < len(samples); i += ch {
			mono = append(mono, samples[i])
		}
		samples = mono
	}
	return IntsToPCM16(samples), int(d.SampleRate), nil
}

// WriteWAV writes mono PCM16 audio as a WAV file.
func WriteWAV(w io.WriteSeeker, pcm []byte, sampleRate int) error {
	enc := wav.NewEncoder(w, sampleRate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           PCM16ToInts(pcm),
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("livevoice: write WAV: %w", err)
	}
	return enc.Close()
}
