package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/zaf/g711"
)

// EncodeMuLawWAV transcodes 16-bit PCM to 8-bit G.711 µ-law and wraps it in a
// WAV container (format tag 7) for telephony clients. Unlike EncodeWAV this
// is lossy.
func EncodeMuLawWAV(pcm []byte, channels, sampleRate int) ([]byte, error) {
	f := Format{Channels: channels, SampleRate: sampleRate, SampleWidth: 1}.withDefaults()
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if len(pcm)%(2*f.Channels) != 0 {
		return nil, fmt.Errorf("%w: pcm length %d is not whole 16-bit frames", ErrInvalidFormat, len(pcm))
	}

	ulaw := g711.EncodeUlaw(pcm)
	if uint64(len(ulaw)) > math.MaxUint32-51 {
		return nil, ErrTooLarge
	}
	frames := uint32(len(ulaw) / f.Channels)
	pad := len(ulaw) & 1

	var buf bytes.Buffer
	buf.Grow(58 + len(ulaw) + pad)
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(50+len(ulaw)+pad))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(18))
	binary.Write(&buf, binary.LittleEndian, fmtChunk{
		AudioFormat:   formatMuLaw,
		Channels:      uint16(f.Channels),
		SampleRate:    uint32(f.SampleRate),
		ByteRate:      uint32(f.ByteRate()),
		BlockAlign:    uint16(f.BlockAlign()),
		BitsPerSample: 8,
	})
	binary.Write(&buf, binary.LittleEndian, uint16(0)) // cbSize

	buf.WriteString("fact")
	binary.Write(&buf, binary.LittleEndian, uint32(4))
	binary.Write(&buf, binary.LittleEndian, frames)

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(ulaw)))
	buf.Write(ulaw)
	if pad != 0 {
		buf.WriteByte(0)
	}
	return buf.Bytes(), nil
}

// DecodeMuLaw expands G.711 µ-law bytes back to 16-bit PCM.
func DecodeMuLaw(ulaw []byte) []byte {
	return g711.DecodeUlaw(ulaw)
}
