package backend

import (
	"context"
	"fmt"
	"time"
)

// Simulator options shared by the simulated collaborators. Latency
// stands in for external call round-trips; Faults injects failures at
// the same boundary where the real services would fail.
type SimulatorConfig struct {
	Latency time.Duration
	Faults  FaultPolicy
}

func (c SimulatorConfig) faults() FaultPolicy {
	if c.Faults == nil {
		return NoFaults{}
	}
	return c.Faults
}

// wait suspends for the simulated latency, honoring cancellation.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Simulated is the full set of stand-in collaborators.
type Simulated struct {
	Extractor   *SimulatedExtractor
	Transcriber *SimulatedTranscriber
	Translator  *SimulatedTranslator
	Synthesizer *SimulatedSynthesizer
	Muxer       *SimulatedMuxer
}

func NewSimulated(cfg SimulatorConfig) *Simulated {
	return &Simulated{
		Extractor:   &SimulatedExtractor{cfg: cfg},
		Transcriber: &SimulatedTranscriber{cfg: cfg},
		Translator:  &SimulatedTranslator{cfg: cfg},
		Synthesizer: &SimulatedSynthesizer{cfg: cfg},
		Muxer:       &SimulatedMuxer{cfg: cfg},
	}
}

type SimulatedExtractor struct {
	cfg SimulatorConfig
}

func (s *SimulatedExtractor) Extract(ctx context.Context, media MediaInfo) (AudioPayload, error) {
	if err := wait(ctx, s.cfg.Latency); err != nil {
		return AudioPayload{}, err
	}
	if err := s.cfg.faults().Trip("extract"); err != nil {
		return AudioPayload{}, err
	}

	// 16 kHz mono PCM, one pretend second of audio.
	return AudioPayload{
		SampleRate: 16000,
		Channels:   1,
		Format:     "pcm_s16le",
		Data:       make([]byte, 32000),
	}, nil
}

type SimulatedTranscriber struct {
	cfg SimulatorConfig
}

func (s *SimulatedTranscriber) Transcribe(ctx context.Context, audio AudioPayload) ([]TranscriptRecord, error) {
	if err := wait(ctx, s.cfg.Latency); err != nil {
		return nil, err
	}
	if err := s.cfg.faults().Trip("transcribe"); err != nil {
		return nil, err
	}
	if audio.Empty() {
		return nil, fmt.Errorf("transcribe: empty audio payload")
	}

	records := make([]TranscriptRecord, 3)
	for i := range records {
		records[i] = TranscriptRecord{
			ID:    fmt.Sprintf("cue-%d", i+1),
			Start: time.Duration(i*2) * time.Second,
			End:   time.Duration(i*2+2) * time.Second,
			Text:  fmt.Sprintf("simulated line %d", i+1),
		}
	}
	return records, nil
}

type SimulatedTranslator struct {
	cfg SimulatorConfig

	// DropIDs omits the given record IDs from the response, the way a
	// real model sometimes loses items; the pipeline degrades those.
	DropIDs map[string]bool
}

var emotionPalette = []string{"calm", "excited", "serious"}

func (s *SimulatedTranslator) Translate(ctx context.Context, records []TranscriptRecord, targetLang string) (TranslationResult, error) {
	if err := wait(ctx, s.cfg.Latency); err != nil {
		return TranslationResult{}, err
	}
	if err := s.cfg.faults().Trip("translate"); err != nil {
		return TranslationResult{}, err
	}

	result := TranslationResult{SourceLanguage: "English"}
	for i, rec := range records {
		if s.DropIDs[rec.ID] {
			continue
		}
		result.Records = append(result.Records, TranslatedRecord{
			ID:             rec.ID,
			TranslatedText: fmt.Sprintf("[%s] %s", targetLang, rec.Text),
			Emotion:        emotionPalette[i%len(emotionPalette)],
		})
	}
	return result, nil
}

type SimulatedSynthesizer struct {
	cfg SimulatorConfig

	// Mute returns empty payloads without an error, exercising the
	// soft-fail path.
	Mute bool
}

func (s *SimulatedSynthesizer) Synthesize(ctx context.Context, req SynthesisRequest) (AudioPayload, error) {
	if err := wait(ctx, s.cfg.Latency); err != nil {
		return AudioPayload{}, err
	}
	if err := s.cfg.faults().Trip("synthesize"); err != nil {
		return AudioPayload{}, err
	}
	if s.Mute {
		return AudioPayload{}, nil
	}

	return AudioPayload{
		SampleRate: 24000,
		Channels:   1,
		Format:     "pcm_s16le",
		Data:       make([]byte, 4800),
	}, nil
}

type SimulatedMuxer struct {
	cfg SimulatorConfig
}

func (s *SimulatedMuxer) Mux(ctx context.Context, media MediaInfo, dub []AudioPayload) (MediaInfo, error) {
	if err := wait(ctx, s.cfg.Latency); err != nil {
		return MediaInfo{}, err
	}
	if err := s.cfg.faults().Trip("mux"); err != nil {
		return MediaInfo{}, err
	}

	return MediaInfo{
		Name:      "dubbed_" + media.Name,
		SizeBytes: media.SizeBytes,
		MimeType:  media.MimeType,
	}, nil
}
