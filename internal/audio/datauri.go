package audio

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrBadDataURI = errors.New("audio: malformed data URI")

// ParseDataURI splits a base64 data URI into its media type and decoded bytes.
func ParseDataURI(uri string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", nil, ErrBadDataURI
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, ErrBadDataURI
	}
	mediaType, ok := strings.CutSuffix(meta, ";base64")
	if !ok {
		return "", nil, fmt.Errorf("%w: not base64", ErrBadDataURI)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrBadDataURI, err)
	}
	return mediaType, data, nil
}

// FormatFromMIME reads a raw PCM media type such as
// "audio/L16;codec=pcm;rate=24000". It reports false for containers and
// compressed types.
func FormatFromMIME(mime string) (Format, bool) {
	parts := strings.Split(mime, ";")
	f := Format{}
	switch strings.ToLower(strings.TrimSpace(parts[0])) {
	case "audio/l16", "audio/pcm":
		f.SampleWidth = 2
	case "audio/l24":
		f.SampleWidth = 3
	case "audio/l8":
		f.SampleWidth = 1
	default:
		return Format{}, false
	}
	for _, p := range parts[1:] {
		k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			continue
		}
		switch strings.ToLower(k) {
		case "rate":
			f.SampleRate = n
		case "channels":
			f.Channels = n
		}
	}
	return f.withDefaults(), true
}

// IsWAV reports whether a media type already names a playable WAV container.
func IsWAV(mime string) bool {
	base, _, _ := strings.Cut(strings.ToLower(mime), ";")
	switch strings.TrimSpace(base) {
	case "audio/wav", "audio/wave", "audio/x-wav", "audio/vnd.wave":
		return true
	}
	return false
}
