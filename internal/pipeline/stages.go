package pipeline

import (
	"context"
	"fmt"

	"dubqueue/internal/backend"
	"dubqueue/internal/subtitle"
	"dubqueue/internal/task"
)

// Backends are the external collaborators the default stage chain
// depends on.
type Backends struct {
	Extractor   backend.AudioExtractor
	Transcriber backend.Transcriber
	Translator  backend.Translator
	Synthesizer backend.Synthesizer
	Muxer       backend.Muxer
}

// Options tune the translation and dubbing stages.
type Options struct {
	TargetLanguage string
	Voice          string
}

func (o Options) withDefaults() Options {
	if o.TargetLanguage == "" {
		o.TargetLanguage = "Arabic"
	}
	if o.Voice == "" {
		o.Voice = "Kore"
	}
	return o
}

// defaultStages is the fixed dubbing chain: extract, transcribe,
// translate, synthesize, mux.
func defaultStages(b Backends, opts Options) []stage {
	opts = opts.withDefaults()

	return []stage{
		{
			Name:           "extract",
			ProgressTarget: 25,
			Message:        "extracting audio track",
			LogDetail:      "audio extracted to 16 kHz mono PCM",
			Run: func(ctx context.Context, st *state) error {
				audio, err := b.Extractor.Extract(ctx, mediaInfo(st.task))
				if err != nil {
					return err
				}
				st.audio = audio
				return nil
			},
		},
		{
			Name:           "transcribe",
			ProgressTarget: 50,
			Message:        "recognizing speech",
			LogDetail:      "speech recognized",
			Run: func(ctx context.Context, st *state) error {
				records, err := b.Transcriber.Transcribe(ctx, st.audio)
				if err != nil {
					return err
				}
				st.records = records
				return nil
			},
		},
		{
			Name:           "translate",
			ProgressTarget: 70,
			Message:        fmt.Sprintf("translating to %s", opts.TargetLanguage),
			LogDetail:      "translation received",
			Run: func(ctx context.Context, st *state) error {
				result, err := b.Translator.Translate(ctx, st.records, opts.TargetLanguage)
				if err != nil {
					return err
				}
				st.source = result.SourceLanguage
				st.cues = mergeTranslations(st.records, result, st)
				return nil
			},
		},
		{
			Name:           "synthesize",
			ProgressTarget: 90,
			Message:        "synthesizing voiceover",
			LogDetail:      "voiceover synthesized",
			Run: func(ctx context.Context, st *state) error {
				for _, cue := range st.cues {
					audio, err := b.Synthesizer.Synthesize(ctx, backend.SynthesisRequest{
						Text:    cue.Text,
						Voice:   opts.Voice,
						Emotion: cue.Emotion,
					})
					if err != nil {
						return err
					}
					if audio.Empty() {
						// Soft-fail: skip the line, keep the stage alive.
						st.note(fmt.Sprintf("no voiceover returned for cue %d, skipping", cue.Index))
						continue
					}
					st.dub = append(st.dub, audio)
				}
				return nil
			},
		},
		{
			Name:           "mux",
			ProgressTarget: 100,
			Message:        "muxing dubbed audio",
			LogDetail:      "dubbed output muxed",
			Run: func(ctx context.Context, st *state) error {
				out, err := b.Muxer.Mux(ctx, mediaInfo(st.task), st.dub)
				if err != nil {
					return err
				}
				st.output = out
				return nil
			},
		},
	}
}

func mediaInfo(t *task.Task) backend.MediaInfo {
	return backend.MediaInfo{
		Name:      t.Name,
		SizeBytes: t.SizeBytes,
	}
}

// mergeTranslations joins the backend's answers back onto the input
// records. A record missing from the response degrades to its original
// text with a neutral emotion instead of failing the task.
func mergeTranslations(records []backend.TranscriptRecord, result backend.TranslationResult, st *state) []subtitle.Cue {
	byID := make(map[string]backend.TranslatedRecord, len(result.Records))
	for _, tr := range result.Records {
		byID[tr.ID] = tr
	}

	cues := make([]subtitle.Cue, 0, len(records))
	for i, rec := range records {
		cue := subtitle.Cue{
			Index:        i + 1,
			Start:        rec.Start,
			End:          rec.End,
			OriginalText: rec.Text,
		}
		if tr, ok := byID[rec.ID]; ok {
			cue.Text = tr.TranslatedText
			cue.Emotion = tr.Emotion
		} else {
			cue.Text = rec.Text
			cue.Emotion = "neutral"
			st.note(fmt.Sprintf("translation missing for cue %d, kept original text", cue.Index))
		}
		cues = append(cues, cue)
	}
	return cues
}
