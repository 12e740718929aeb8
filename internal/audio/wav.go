// Package audio wraps raw linear PCM in a WAV container and embeds the result
// in data URIs. Encoding never resamples or recompresses the PCM payload.
package audio

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

const (
	DefaultChannels    = 1
	DefaultSampleRate  = 24000
	DefaultSampleWidth = 2 // 16-bit signed samples

	// HeaderSize is the length of the canonical PCM header written by WriteWAV.
	HeaderSize = 44

	formatPCM   = 1
	formatMuLaw = 7
)

var (
	ErrIncompleteWrite = errors.New("audio: buffer not fully written")
	ErrInvalidFormat   = errors.New("audio: invalid format")
	ErrTooLarge        = errors.New("audio: payload exceeds WAV size limit")
	ErrNotWAV          = errors.New("audio: not a RIFF/WAVE stream")
)

// Format describes interleaved little-endian PCM. Zero fields take the defaults.
type Format struct {
	Channels    int `json:"channels"`
	SampleRate  int `json:"sampleRate"`
	SampleWidth int `json:"sampleWidth"` // bytes per sample
}

// DefaultFormat is mono 24 kHz 16-bit, the speech model's native output.
var DefaultFormat = Format{Channels: DefaultChannels, SampleRate: DefaultSampleRate, SampleWidth: DefaultSampleWidth}

func (f Format) withDefaults() Format {
	if f.Channels == 0 {
		f.Channels = DefaultChannels
	}
	if f.SampleRate == 0 {
		f.SampleRate = DefaultSampleRate
	}
	if f.SampleWidth == 0 {
		f.SampleWidth = DefaultSampleWidth
	}
	return f
}

// Validate checks that the format fits in a WAV header.
func (f Format) Validate() error {
	switch {
	case f.Channels < 1 || f.Channels > math.MaxUint16:
		return fmt.Errorf("%w: channels %d", ErrInvalidFormat, f.Channels)
	case f.SampleRate < 1 || f.SampleRate > math.MaxInt32:
		return fmt.Errorf("%w: sample rate %d", ErrInvalidFormat, f.SampleRate)
	case f.SampleWidth < 1 || f.SampleWidth > 4:
		return fmt.Errorf("%w: sample width %d", ErrInvalidFormat, f.SampleWidth)
	}
	if uint64(f.SampleRate)*uint64(f.Channels)*uint64(f.SampleWidth) > math.MaxUint32 {
		return fmt.Errorf("%w: byte rate overflows", ErrInvalidFormat)
	}
	return nil
}

func (f Format) BitDepth() int   { return f.SampleWidth * 8 }
func (f Format) BlockAlign() int { return f.Channels * f.SampleWidth }
func (f Format) ByteRate() int   { return f.SampleRate * f.BlockAlign() }

// fmtChunk is the body of a WAV "fmt " chunk.
type fmtChunk struct {
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
}

func pcmChunk(f Format) fmtChunk {
	return fmtChunk{
		AudioFormat:   formatPCM,
		Channels:      uint16(f.Channels),
		SampleRate:    uint32(f.SampleRate),
		ByteRate:      uint32(f.ByteRate()),
		BlockAlign:    uint16(f.BlockAlign()),
		BitsPerSample: uint16(f.BitDepth()),
	}
}

// WriteWAV writes a WAV header declaring f followed by pcm byte-for-byte,
// plus a pad byte when pcm has odd length.
func WriteWAV(w io.Writer, pcm []byte, f Format) error {
	f = f.withDefaults()
	if err := f.Validate(); err != nil {
		return err
	}
	if uint64(len(pcm)) > math.MaxUint32-(HeaderSize-8)-1 {
		return ErrTooLarge
	}

	// RIFF chunks are word aligned: an odd data chunk is followed by one pad
	// byte that the RIFF size counts and the data size does not.
	dataSize := uint32(len(pcm))
	pad := dataSize & 1
	hdr := bytes.NewBuffer(make([]byte, 0, HeaderSize))
	hdr.WriteString("RIFF")
	binary.Write(hdr, binary.LittleEndian, uint32(HeaderSize-8)+dataSize+pad)
	hdr.WriteString("WAVE")
	hdr.WriteString("fmt ")
	binary.Write(hdr, binary.LittleEndian, uint32(16))
	binary.Write(hdr, binary.LittleEndian, pcmChunk(f))
	hdr.WriteString("data")
	binary.Write(hdr, binary.LittleEndian, dataSize)

	if err := writeFull(w, hdr.Bytes()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := writeFull(w, pcm); err != nil {
		return fmt.Errorf("write samples: %w", err)
	}
	if pad != 0 {
		if err := writeFull(w, []byte{0}); err != nil {
			return fmt.Errorf("write pad byte: %w", err)
		}
	}
	return nil
}

func writeFull(w io.Writer, b []byte) error {
	n, err := w.Write(b)
	if err != nil {
		return err
	}
	if n != len(b) {
		return ErrIncompleteWrite
	}
	return nil
}

// EncodeWAV returns the complete WAV container for pcm.
func EncodeWAV(pcm []byte, f Format) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(HeaderSize + len(pcm) + 1)
	if err := WriteWAV(&buf, pcm, f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeBase64 returns the base64 text of the WAV container for pcm.
func EncodeBase64(pcm []byte, f Format) (string, error) {
	wav, err := EncodeWAV(pcm, f)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(wav), nil
}

// DataURI returns pcm as an embeddable data:audio/wav;base64 URI.
func DataURI(pcm []byte, f Format) (string, error) {
	b64, err := EncodeBase64(pcm, f)
	if err != nil {
		return "", err
	}
	return WAVDataURI(b64), nil
}

// WAVDataURI wraps base64 WAV text in a data URI.
func WAVDataURI(b64 string) string {
	return "data:audio/wav;base64," + b64
}

// Info is what a WAV header declares.
type Info struct {
	AudioFormat uint16
	Format      Format
}

// DecodeWAV parses a WAV container and returns its declared format and the
// contents of its data chunk. Unknown chunks are skipped.
func DecodeWAV(b []byte) (Info, []byte, error) {
	if len(b) < 12 || !bytes.Equal(b[0:4], []byte("RIFF")) || !bytes.Equal(b[8:12], []byte("WAVE")) {
		return Info{}, nil, ErrNotWAV
	}

	var info Info
	haveFmt := false
	i := 12
	for i+8 <= len(b) {
		id := string(b[i : i+4])
		size := int(binary.LittleEndian.Uint32(b[i+4 : i+8]))
		body := i + 8
		next := body + size
		if next > len(b) || next < body {
			return Info{}, nil, fmt.Errorf("%w: chunk %q exceeds buffer", ErrNotWAV, id)
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return Info{}, nil, fmt.Errorf("%w: short fmt chunk", ErrNotWAV)
			}
			var fc fmtChunk
			if err := binary.Read(bytes.NewReader(b[body:body+16]), binary.LittleEndian, &fc); err != nil {
				return Info{}, nil, fmt.Errorf("read fmt chunk: %w", err)
			}
			info = Info{
				AudioFormat: fc.AudioFormat,
				Format: Format{
					Channels:    int(fc.Channels),
					SampleRate:  int(fc.SampleRate),
					SampleWidth: int(fc.BitsPerSample) / 8,
				},
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return Info{}, nil, fmt.Errorf("%w: data before fmt", ErrNotWAV)
			}
			return info, b[body:next], nil
		}

		if size%2 != 0 {
			next++
		}
		i = next
	}
	return Info{}, nil, fmt.Errorf("%w: data chunk not found", ErrNotWAV)
}
