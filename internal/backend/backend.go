package backend

import (
	"context"
	"time"
)

// MediaInfo identifies the input (or output) media of a pipeline run.
type MediaInfo struct {
	Name      string `json:"name"`
	SizeBytes int64  `json:"sizeBytes"`
	MimeType  string `json:"mimeType"`
}

// AudioPayload is an encoded or raw audio buffer exchanged with the
// extraction and synthesis backends. Extraction normalizes to 16 kHz
// mono PCM for the recognition stages.
type AudioPayload struct {
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
	Format     string `json:"format"`
	Data       []byte `json:"-"`
}

// Empty reports whether the backend produced no audio. An empty payload
// without an error is the synthesis soft-fail case.
func (p AudioPayload) Empty() bool {
	return len(p.Data) == 0
}

// TranscriptRecord is one recognized utterance with seconds-resolution
// bounds.
type TranscriptRecord struct {
	ID    string        `json:"id"`
	Start time.Duration `json:"startTime"`
	End   time.Duration `json:"endTime"`
	Text  string        `json:"originalText"`
}

// TranslatedRecord is the translation backend's answer for one record.
type TranslatedRecord struct {
	ID             string `json:"id"`
	TranslatedText string `json:"translatedText"`
	Emotion        string `json:"emotion"`
}

// TranslationResult carries per-record translations plus one detected
// source language for the whole batch.
type TranslationResult struct {
	Records        []TranslatedRecord `json:"records"`
	SourceLanguage string             `json:"sourceLanguage"`
}

// SynthesisRequest asks the voice backend for one dubbed line.
type SynthesisRequest struct {
	Text    string `json:"text"`
	Voice   string `json:"voice"`
	Emotion string `json:"emotion,omitempty"`
}

// AudioExtractor pulls the audio track out of the input media.
type AudioExtractor interface {
	Extract(ctx context.Context, media MediaInfo) (AudioPayload, error)
}

// Transcriber turns audio into ordered transcript records.
type Transcriber interface {
	Transcribe(ctx context.Context, audio AudioPayload) ([]TranscriptRecord, error)
}

// Translator translates transcript records into the target language.
// Records missing from the response are degraded by the caller, not
// treated as a backend failure.
type Translator interface {
	Translate(ctx context.Context, records []TranscriptRecord, targetLang string) (TranslationResult, error)
}

// Synthesizer produces a voiceover for one line. Returning an empty
// payload without an error is a soft-fail the pipeline logs and skips.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthesisRequest) (AudioPayload, error)
}

// Muxer merges the dubbed audio back into the media container.
type Muxer interface {
	Mux(ctx context.Context, media MediaInfo, dub []AudioPayload) (MediaInfo, error)
}
