package analysis

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jdkato/prose/v2"
	"go.uber.org/zap"

	"github.com/raj-deshmukh6403/AI-Communication-Interview-Helper/internal/storage/models"
	"github.com/raj-deshmukh6403/AI-Communication-Interview-Helper/pkg/logger"
)

const (
	defaultSampleRate = 16000
	targetPaceMin     = 130
	targetPaceMax     = 170
	maxVolumeRef      = 0.5
	rmsWindowSize     = 512
)

var fillerWords = []string{
	"um", "uh", "like", "you know", "basically", "actually",
	"sort of", "kind of", "i mean", "you see", "right", "okay",
}

// AudioAnalyzer scores audio chunks and accumulates session-wide vocal
// statistics. Not safe for concurrent use; each session owns one instance.
type AudioAnalyzer struct {
	totalWords        int
	totalFillerWords  int
	totalSpeakingTime float64
	volumeHistory     []float64
	pitchHistory      []float64
}

func NewAudioAnalyzer() *AudioAnalyzer {
	return &AudioAnalyzer{}
}

// AnalyzeChunk decodes a base64 PCM chunk, extracts vocal features, and
// analyzes the transcript when one was captured client-side. Internal
// failures degrade to an analysis_failed record rather than an error.
func (a *AudioAnalyzer) AnalyzeChunk(audioData, transcript string) AudioMetrics {
	samples, sampleRate, err := decodePCM(audioData)
	if err != nil {
		logger.Debug("Audio decode failed", zap.Error(err))
		return AudioMetrics{
			Timestamp: time.Now().UTC(),
			Issues:    []string{IssueAnalysisFailed},
			Warnings:  []string{},
		}
	}

	metrics := AudioMetrics{
		Timestamp:       time.Now().UTC(),
		DurationSeconds: float64(len(samples)) / float64(sampleRate),
		Transcript:      transcript,
		Issues:          []string{},
		Warnings:        []string{},
	}

	// Chunks under half a second carry too little signal to score.
	if metrics.DurationSeconds < 0.5 {
		return metrics
	}

	volume, consistency, energy := analyzeVolume(samples)
	metrics.VolumeLevel = volume
	metrics.VolumeConsistency = consistency
	metrics.EnergyLevel = energy

	pitch, variation := analyzePitch(samples, sampleRate)
	metrics.PitchHz = pitch
	metrics.PitchVariation = variation

	if transcript != "" {
		wordCount := countWords(transcript)
		metrics.WordCount = wordCount
		metrics.SpeakingPace = round2(float64(wordCount) / metrics.DurationSeconds * 60)
		metrics.FillerWords, metrics.FillerWordsCount = detectFillerWords(transcript)

		a.totalWords += wordCount
		a.totalFillerWords += metrics.FillerWordsCount
	}

	a.detectIssues(&metrics)

	a.volumeHistory = append(a.volumeHistory, volume)
	if pitch > 0 {
		a.pitchHistory = append(a.pitchHistory, pitch)
	}
	a.totalSpeakingTime += metrics.DurationSeconds

	return metrics
}

func (a *AudioAnalyzer) detectIssues(m *AudioMetrics) {
	if m.SpeakingPace > 0 {
		if m.SpeakingPace > targetPaceMax {
			m.Issues = append(m.Issues, IssueSpeakingTooFast)
			m.Warnings = append(m.Warnings, "You're speaking quite fast. Try to slow down and take pauses.")
		} else if m.SpeakingPace < targetPaceMin {
			m.Issues = append(m.Issues, IssueSpeakingTooSlow)
			m.Warnings = append(m.Warnings, "Your pace is a bit slow. Try to speak more naturally.")
		}
	}

	if m.VolumeLevel < 20 {
		m.Issues = append(m.Issues, IssueVolumeTooLow)
		m.Warnings = append(m.Warnings, "Your voice is too quiet. Please speak louder.")
	} else if m.VolumeLevel > 90 {
		m.Issues = append(m.Issues, IssueVolumeTooLoud)
		m.Warnings = append(m.Warnings, "Your voice is very loud. Try speaking more softly.")
	}

	if m.VolumeConsistency < 50 {
		m.Issues = append(m.Issues, IssueUnevenVolume)
		m.Warnings = append(m.Warnings, "Your volume is inconsistent. Try to maintain steady volume.")
	}

	if m.PitchVariation < 5 && m.PitchHz > 0 {
		m.Issues = append(m.Issues, IssueMonotone)
		m.Warnings = append(m.Warnings, "Your speech sounds monotone. Try varying your pitch for emphasis.")
	}

	if m.FillerWordsCount > 3 {
		m.Issues = append(m.Issues, IssueExcessiveFillers)
		words := make([]string, 0, len(m.FillerWords))
		for _, f := range m.FillerWords {
			words = append(words, f.Word)
		}
		m.Warnings = append(m.Warnings, fmt.Sprintf("You're using filler words (%s). Try to eliminate them.", strings.Join(words, ", ")))
	}
}

// Stats returns session-wide vocal accumulators, read at answer submission
// and at session end.
func (a *AudioAnalyzer) Stats() *models.AudioSummary {
	avgPace := 0.0
	if a.totalSpeakingTime > 0 {
		avgPace = float64(a.totalWords) / a.totalSpeakingTime * 60
	}

	fillerRate := 0.0
	if a.totalWords > 0 {
		fillerRate = float64(a.totalFillerWords) / float64(a.totalWords) * 100
	}

	return &models.AudioSummary{
		TotalSpeakingTimeSeconds: round2(a.totalSpeakingTime),
		TotalWords:               a.totalWords,
		TotalFillerWords:         a.totalFillerWords,
		AverageSpeakingPace:      round2(avgPace),
		FillerWordRate:           round2(fillerRate),
		AverageVolume:            round2(mean(a.volumeHistory)),
		AveragePitch:             round2(mean(a.pitchHistory)),
		PitchVariation:           round2(stddev(a.pitchHistory)),
	}
}

func (a *AudioAnalyzer) Reset() {
	a.totalWords = 0
	a.totalFillerWords = 0
	a.totalSpeakingTime = 0
	a.volumeHistory = nil
	a.pitchHistory = nil
}

// decodePCM accepts base64 16-bit little-endian mono PCM, with or without a
// WAV header, and returns normalized samples.
func decodePCM(audioData string) ([]float64, int, error) {
	if idx := strings.IndexByte(audioData, ','); idx >= 0 {
		audioData = audioData[idx+1:]
	}

	raw, err := base64.StdEncoding.DecodeString(audioData)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to decode audio: %w", err)
	}

	sampleRate := defaultSampleRate
	if len(raw) >= 44 && string(raw[0:4]) == "RIFF" && string(raw[8:12]) == "WAVE" {
		sampleRate = int(binary.LittleEndian.Uint32(raw[24:28]))
		raw = raw[44:]
	}

	if len(raw) < 2 {
		return nil, 0, fmt.Errorf("audio payload too short")
	}
	if sampleRate <= 0 {
		sampleRate = defaultSampleRate
	}

	samples := make([]float64, len(raw)/2)
	for i := range samples {
		s := int16(binary.LittleEndian.Uint16(raw[i*2 : i*2+2]))
		samples[i] = float64(s) / 32768.0
	}

	return samples, sampleRate, nil
}

func analyzeVolume(samples []float64) (level, consistency, energy float64) {
	var windows []float64
	for start := 0; start < len(samples); start += rmsWindowSize {
		end := start + rmsWindowSize
		if end > len(samples) {
			end = len(samples)
		}
		sum := 0.0
		for _, s := range samples[start:end] {
			sum += s * s
		}
		windows = append(windows, math.Sqrt(sum/float64(end-start)))
	}

	meanRMS := mean(windows)
	stdRMS := stddev(windows)

	level = math.Min(100, meanRMS/maxVolumeRef*100)
	if meanRMS > 0 {
		consistency = math.Max(0, 100-stdRMS/meanRMS*100)
	}

	sum := 0.0
	for _, s := range samples {
		sum += s * s
	}
	energy = sum / float64(len(samples))

	return round2(level), round2(consistency), energy
}

// analyzePitch estimates fundamental frequency per window from the
// zero-crossing rate. Crude next to a proper pitch tracker, but variation
// across windows is what the downstream consumers care about.
func analyzePitch(samples []float64, sampleRate int) (meanPitch, variation float64) {
	windowSize := sampleRate / 10
	if windowSize <= 0 {
		return 0, 0
	}

	var pitches []float64
	for start := 0; start+windowSize <= len(samples); start += windowSize {
		window := samples[start : start+windowSize]

		rms := 0.0
		for _, s := range window {
			rms += s * s
		}
		rms = math.Sqrt(rms / float64(len(window)))
		if rms < 0.01 {
			continue // unvoiced
		}

		crossings := 0
		for i := 1; i < len(window); i++ {
			if (window[i-1] < 0) != (window[i] < 0) {
				crossings++
			}
		}

		f0 := float64(crossings) * float64(sampleRate) / float64(2*len(window))
		if f0 >= 65 && f0 <= 2100 { // roughly C2..C7
			pitches = append(pitches, f0)
		}
	}

	if len(pitches) == 0 {
		return 0, 0
	}

	meanPitch = mean(pitches)
	if meanPitch > 0 {
		variation = stddev(pitches) / meanPitch * 100
	}

	return round2(meanPitch), round2(variation)
}

func countWords(transcript string) int {
	doc, err := prose.NewDocument(transcript,
		prose.WithSegmentation(false),
		prose.WithTagging(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		// Tokenizer failure shouldn't zero the pace; fall back to fields.
		return len(strings.Fields(transcript))
	}

	count := 0
	for _, tok := range doc.Tokens() {
		if isWordToken(tok.Text) {
			count++
		}
	}
	return count
}

func isWordToken(text string) bool {
	for _, r := range text {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return true
		}
	}
	return false
}

func detectFillerWords(transcript string) ([]FillerWord, int) {
	lower := strings.ToLower(transcript)

	var found []FillerWord
	total := 0
	for _, filler := range fillerWords {
		count := countOccurrences(lower, filler)
		if count > 0 {
			total += count
			found = append(found, FillerWord{Word: filler, Count: count})
		}
	}

	return found, total
}

// countOccurrences counts whole-word matches so "like" doesn't fire inside
// "likely".
func countOccurrences(text, phrase string) int {
	count := 0
	for start := 0; ; {
		idx := strings.Index(text[start:], phrase)
		if idx < 0 {
			break
		}
		abs := start + idx
		end := abs + len(phrase)

		beforeOK := abs == 0 || !isWordChar(text[abs-1])
		afterOK := end == len(text) || !isWordChar(text[end])
		if beforeOK && afterOK {
			count++
		}

		start = abs + len(phrase)
	}
	return count
}

func isWordChar(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func stddev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := mean(values)
	sum := 0.0
	for _, v := range values {
		sum += (v - m) * (v - m)
	}
	return math.Sqrt(sum / float64(len(values)))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
