// Package speech turns text into a playable WAV data URI using a Gemini
// speech model.
package speech

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MikeSquared-Agency/macha/internal/audio"
	"github.com/MikeSquared-Agency/macha/internal/gemini"
)

var (
	// ErrMissingCredential is a configuration error reported before any
	// network call is made.
	ErrMissingCredential = errors.New("GOOGLE_API_KEY is missing. Set it in the server environment and restart for the voice feature to work")
	ErrSynthesisFailed   = errors.New("the text-to-speech service failed. Please check your GOOGLE_API_KEY and try again")
	ErrEmptyText         = errors.New("text is empty")
	ErrUnknownEncoding   = errors.New("unknown audio encoding")
)

// Encoding selects the container payload of the returned WAV.
type Encoding string

const (
	EncodingPCM   Encoding = "pcm"
	EncodingMuLaw Encoding = "mulaw"
)

// ParseEncoding accepts "", "pcm", "wav" and "mulaw"/"ulaw".
func ParseEncoding(s string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "pcm", "wav", "linear16":
		return EncodingPCM, nil
	case "mulaw", "ulaw", "g711":
		return EncodingMuLaw, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEncoding, s)
}

// Speaker produces raw audio for text.
type Speaker interface {
	Speak(ctx context.Context, model, voice, text string) (*gemini.Audio, error)
}

type Synthesizer struct {
	apiKey  string
	model   string
	voice   string
	speaker Speaker
	logger  *slog.Logger
}

// NewSynthesizer builds a synthesizer backed by the Gemini speech API.
func NewSynthesizer(apiKey, model, voice string, logger *slog.Logger) *Synthesizer {
	return &Synthesizer{
		apiKey:  apiKey,
		model:   model,
		voice:   voice,
		speaker: gemini.NewClient(apiKey, model),
		logger:  logger,
	}
}

// SetBaseURL points the underlying Gemini client at another endpoint.
func (s *Synthesizer) SetBaseURL(url string) {
	if c, ok := s.speaker.(*gemini.Client); ok {
		c.SetBaseURL(url)
	}
}

// SetTestTransport is SetBaseURL for tests.
func (s *Synthesizer) SetTestTransport(url string) {
	s.SetBaseURL(url)
}

// Configured reports whether the speech credential is present.
func (s *Synthesizer) Configured() bool { return s.apiKey != "" }

// Voice returns the prebuilt voice name.
func (s *Synthesizer) Voice() string { return s.voice }

// Synthesize speaks text and returns a data:audio/wav;base64 URI.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, enc Encoding) (string, error) {
	if !s.Configured() {
		return "", ErrMissingCredential
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyText
	}
	if enc == "" {
		enc = EncodingPCM
	}

	a, err := s.speaker.Speak(ctx, s.model, s.voice, text)
	if err != nil {
		s.logger.Error("speech synthesis failed", "model", s.model, "voice", s.voice, "error", err)
		return "", fmt.Errorf("%w: %v", ErrSynthesisFailed, err)
	}

	uri, err := toDataURI(a, enc)
	if err != nil {
		s.logger.Error("speech encoding failed", "mime", a.MIMEType, "bytes", len(a.Data), "error", err)
		return "", fmt.Errorf("%w: %v", ErrSynthesisFailed, err)
	}
	s.logger.Debug("speech synthesized", "mime", a.MIMEType, "bytes", len(a.Data), "encoding", enc)
	return uri, nil
}

func toDataURI(a *gemini.Audio, enc Encoding) (string, error) {
	if audio.IsWAV(a.MIMEType) {
		if enc == EncodingPCM {
			return audio.WAVDataURI(base64.StdEncoding.EncodeToString(a.Data)), nil
		}
		info, pcm, err := audio.DecodeWAV(a.Data)
		if err != nil {
			return "", err
		}
		if info.AudioFormat != 1 || info.Format.SampleWidth != 2 {
			return "", fmt.Errorf("cannot transcode %d-bit format %d to mulaw", info.Format.BitDepth(), info.AudioFormat)
		}
		return mulawURI(pcm, info.Format)
	}

	f := audio.DefaultFormat
	if a.MIMEType != "" {
		var ok bool
		if f, ok = audio.FormatFromMIME(a.MIMEType); !ok {
			return "", fmt.Errorf("unsupported audio type %q", a.MIMEType)
		}
	}

	switch enc {
	case EncodingMuLaw:
		if f.SampleWidth != 2 {
			return "", fmt.Errorf("cannot transcode %d-bit pcm to mulaw", f.BitDepth())
		}
		return mulawURI(a.Data, f)
	default:
		return audio.DataURI(a.Data, f)
	}
}

func mulawURI(pcm []byte, f audio.Format) (string, error) {
	wav, err := audio.EncodeMuLawWAV(pcm, f.Channels, f.SampleRate)
	if err != nil {
		return "", err
	}
	return audio.WAVDataURI(base64.StdEncoding.EncodeToString(wav)), nil
}
