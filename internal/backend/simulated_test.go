package backend

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulatedExtractor_AudioContract(t *testing.T) {
	sims := NewSimulated(SimulatorConfig{})
	ctx := context.Background()

	audio, err := sims.Extractor.Extract(ctx, MediaInfo{Name: "clip.mp4"})
	require.NoError(t, err)

	assert.Equal(t, 16000, audio.SampleRate)
	assert.Equal(t, 1, audio.Channels)
	assert.Equal(t, "pcm_s16le", audio.Format)
	assert.False(t, audio.Empty())
}

func TestSimulatedTranscriber_RejectsEmptyAudio(t *testing.T) {
	sims := NewSimulated(SimulatorConfig{})

	_, err := sims.Transcriber.Transcribe(context.Background(), AudioPayload{})
	assert.Error(t, err)
}

func TestSimulatedTranslator_DropsConfiguredIDs(t *testing.T) {
	sims := NewSimulated(SimulatorConfig{})
	sims.Translator.DropIDs = map[string]bool{"cue-2": true}
	ctx := context.Background()

	audio, err := sims.Extractor.Extract(ctx, MediaInfo{Name: "clip.mp4"})
	require.NoError(t, err)
	records, err := sims.Transcriber.Transcribe(ctx, audio)
	require.NoError(t, err)
	require.Len(t, records, 3)

	result, err := sims.Translator.Translate(ctx, records, "Arabic")
	require.NoError(t, err)

	assert.Equal(t, "English", result.SourceLanguage)
	require.Len(t, result.Records, 2)
	for _, rec := range result.Records {
		assert.NotEqual(t, "cue-2", rec.ID)
		assert.Contains(t, rec.TranslatedText, "[Arabic]")
		assert.NotEmpty(t, rec.Emotion)
	}
}

func TestSimulatedSynthesizer_Mute(t *testing.T) {
	sims := NewSimulated(SimulatorConfig{})
	sims.Synthesizer.Mute = true

	audio, err := sims.Synthesizer.Synthesize(context.Background(), SynthesisRequest{Text: "hi", Voice: "Kore"})
	require.NoError(t, err)
	assert.True(t, audio.Empty())
}

func TestScriptedFaults(t *testing.T) {
	boom := errors.New("boom")
	faults := NewScriptedFaults().Fail("translate", boom)

	assert.NoError(t, faults.Trip("extract"))
	assert.ErrorIs(t, faults.Trip("translate"), boom)

	faults.Clear("translate")
	assert.NoError(t, faults.Trip("translate"))
}

func TestRandomFaults_Extremes(t *testing.T) {
	never := NewRandomFaults(0, 1)
	always := NewRandomFaults(1, 1)

	for i := 0; i < 100; i++ {
		assert.NoError(t, never.Trip("extract"))
		assert.Error(t, always.Trip("extract"))
	}
}

func TestScriptedFaults_FailsWholePipelineStage(t *testing.T) {
	boom := errors.New("backend down")
	sims := NewSimulated(SimulatorConfig{Faults: NewScriptedFaults().Fail("mux", boom)})

	_, err := sims.Muxer.Mux(context.Background(), MediaInfo{Name: "clip.mp4"}, nil)
	assert.ErrorIs(t, err, boom)
}
