package analysis

import (
	"encoding/base64"
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sineChunk encodes a mono PCM16 sine wave as the client would ship it.
func sineChunk(freqHz float64, amplitude float64, seconds float64) string {
	n := int(seconds * defaultSampleRate)
	raw := make([]byte, n*2)
	for i := 0; i < n; i++ {
		v := amplitude * math.Sin(2*math.Pi*freqHz*float64(i)/defaultSampleRate)
		binary.LittleEndian.PutUint16(raw[i*2:], uint16(int16(v*32767)))
	}
	return base64.StdEncoding.EncodeToString(raw)
}

func TestAnalyzeChunkGarbageInput(t *testing.T) {
	a := NewAudioAnalyzer()

	m := a.AnalyzeChunk("!!!not base64!!!", "")

	assert.True(t, m.HasIssue(IssueAnalysisFailed))
	assert.Zero(t, m.VolumeLevel)
	assert.Zero(t, m.SpeakingPace)
}

func TestAnalyzeChunkExtractsVocalFeatures(t *testing.T) {
	a := NewAudioAnalyzer()

	m := a.AnalyzeChunk(sineChunk(200, 0.3, 2), "")

	assert.InDelta(t, 2.0, m.DurationSeconds, 0.01)
	assert.Greater(t, m.VolumeLevel, 20.0)
	assert.Greater(t, m.VolumeConsistency, 80.0, "steady tone should have consistent volume")
	assert.InDelta(t, 200, m.PitchHz, 20)
	// A pure tone has no pitch movement at all.
	assert.True(t, m.HasIssue(IssueMonotone))
}

func TestAnalyzeChunkSpeakingPace(t *testing.T) {
	a := NewAudioAnalyzer()

	transcript := "one two three four five six seven eight nine ten"
	m := a.AnalyzeChunk(sineChunk(180, 0.3, 2), transcript)

	assert.Equal(t, 10, m.WordCount)
	assert.InDelta(t, 300, m.SpeakingPace, 1)
	assert.True(t, m.HasIssue(IssueSpeakingTooFast))
}

func TestAnalyzeChunkQuietAudio(t *testing.T) {
	a := NewAudioAnalyzer()

	m := a.AnalyzeChunk(sineChunk(180, 0.02, 1), "")

	assert.True(t, m.HasIssue(IssueVolumeTooLow))
}

func TestDetectFillerWords(t *testing.T) {
	found, total := detectFillerWords("Um, I basically think, um, you know, it went well. Most likely fine.")

	assert.Equal(t, 4, total)

	counts := map[string]int{}
	for _, f := range found {
		counts[f.Word] = f.Count
	}
	assert.Equal(t, 2, counts["um"])
	assert.Equal(t, 1, counts["basically"])
	assert.Equal(t, 1, counts["you know"])
	// "likely" must not count as "like".
	assert.Zero(t, counts["like"])
}

func TestStatsAccumulateAcrossChunks(t *testing.T) {
	a := NewAudioAnalyzer()

	a.AnalyzeChunk(sineChunk(200, 0.3, 2), "one two three four")
	a.AnalyzeChunk(sineChunk(200, 0.3, 2), "five six um seven eight")

	stats := a.Stats()
	require.NotNil(t, stats)

	assert.InDelta(t, 4.0, stats.TotalSpeakingTimeSeconds, 0.05)
	assert.Equal(t, 9, stats.TotalWords)
	assert.Equal(t, 1, stats.TotalFillerWords)
	assert.InDelta(t, 135, stats.AverageSpeakingPace, 2)
	assert.Greater(t, stats.AverageVolume, 0.0)

	a.Reset()
	fresh := a.Stats()
	assert.Zero(t, fresh.TotalWords)
	assert.Zero(t, fresh.TotalSpeakingTimeSeconds)
}

func TestDecodePCMSkipsWavHeader(t *testing.T) {
	body := make([]byte, 3200)
	header := make([]byte, 44)
	copy(header[0:4], "RIFF")
	copy(header[8:12], "WAVE")
	binary.LittleEndian.PutUint32(header[24:28], 8000)
	encoded := base64.StdEncoding.EncodeToString(append(header, body...))

	samples, rate, err := decodePCM(encoded)
	require.NoError(t, err)
	assert.Equal(t, 8000, rate)
	assert.Len(t, samples, 1600)
}
