package analysis

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/raj-deshmukh6403/AI-Communication-Interview-Helper/internal/storage/models"
	"github.com/raj-deshmukh6403/AI-Communication-Interview-Helper/pkg/logger"
)

// frameFeatures is the per-frame feature blob produced by the client-side
// face tracker. The browser runs landmark detection locally and ships
// geometry instead of raw pixels; this adapter turns geometry into scores.
type frameFeatures struct {
	FaceDetected bool    `json:"face_detected"`
	GazeOffset   float64 `json:"gaze_offset"` // normalized nose offset from frame center
	HeadPosition string  `json:"head_position"`
	MotionDelta  float64 `json:"motion_delta"`
	Emotion      string  `json:"emotion"`
}

// VideoAnalyzer scores incoming frames and accumulates per-question
// aggregates. Not safe for concurrent use; each session owns one instance.
type VideoAnalyzer struct {
	frameCount        int
	eyeContactHistory []float64
	engagementHistory []float64
}

func NewVideoAnalyzer() *VideoAnalyzer {
	return &VideoAnalyzer{}
}

// AnalyzeFrame never returns an error: any internal failure yields a zeroed
// record carrying the analysis_failed issue so a single bad frame can't take
// down the message loop.
func (a *VideoAnalyzer) AnalyzeFrame(frameData string) VideoMetrics {
	features, err := decodeFrameFeatures(frameData)
	if err != nil {
		logger.Debug("Frame decode failed", zap.Error(err))
		return VideoMetrics{
			Timestamp:       time.Now().UTC(),
			DominantEmotion: "neutral",
			HeadPosition:    "unknown",
			Issues:          []string{IssueAnalysisFailed},
		}
	}

	a.frameCount++

	metrics := VideoMetrics{
		Timestamp:       time.Now().UTC(),
		FaceDetected:    features.FaceDetected,
		HeadPosition:    features.HeadPosition,
		DominantEmotion: features.Emotion,
		MovementLevel:   features.MotionDelta,
		Issues:          []string{},
		Warnings:        []string{},
	}

	if !features.FaceDetected {
		metrics.HeadPosition = "unknown"
		metrics.DominantEmotion = "neutral"
		metrics.Issues = append(metrics.Issues, IssueNoFaceDetected)
		metrics.Warnings = append(metrics.Warnings, "No face detected. Make sure you're visible in the camera.")
		return metrics
	}

	if metrics.DominantEmotion == "" {
		metrics.DominantEmotion = "neutral"
	}

	metrics.EyeContactScore = clamp(100-features.GazeOffset*200, 0, 100)
	metrics.GazeDirection = gazeDirection(features.GazeOffset, features.HeadPosition)
	metrics.EngagementScore = a.calculateEngagement(metrics)

	a.detectIssues(&metrics)

	a.eyeContactHistory = append(a.eyeContactHistory, metrics.EyeContactScore)
	a.engagementHistory = append(a.engagementHistory, metrics.EngagementScore)

	return metrics
}

func (a *VideoAnalyzer) calculateEngagement(m VideoMetrics) float64 {
	score := m.EyeContactScore

	switch m.HeadPosition {
	case "looking_down", "looking_up":
		score -= 20
	case "turned_left", "turned_right":
		score -= 15
	}

	switch m.DominantEmotion {
	case "sad", "angry", "disgust":
		score -= 15
	case "fear":
		score -= 10
	}

	if m.MovementLevel > 0.15 {
		score -= 10
	}

	return clamp(score, 0, 100)
}

func (a *VideoAnalyzer) detectIssues(m *VideoMetrics) {
	if m.EyeContactScore < 30 {
		m.Issues = append(m.Issues, IssuePoorEyeContact)
		m.Warnings = append(m.Warnings, "Try to look directly at the camera.")
	}

	switch m.HeadPosition {
	case "looking_down":
		m.Issues = append(m.Issues, IssueLookingDown)
		m.Warnings = append(m.Warnings, "You're looking down. Keep your eyes on the camera.")
	case "looking_up":
		m.Issues = append(m.Issues, IssueLookingUp)
		m.Warnings = append(m.Warnings, "You're looking up. Keep your eyes on the camera.")
	case "turned_left", "turned_right":
		m.Issues = append(m.Issues, IssueHeadTurned)
		m.Warnings = append(m.Warnings, "Face the camera directly.")
	}

	if m.MovementLevel > 0.15 {
		m.Issues = append(m.Issues, IssueExcessiveMove)
		m.Warnings = append(m.Warnings, "Try to stay still and composed.")
	}

	if m.EngagementScore < 50 {
		m.Issues = append(m.Issues, IssueLowEngagement)
		m.Warnings = append(m.Warnings, "You seem distracted. Stay focused on the interview.")
	}

	switch m.DominantEmotion {
	case "fear", "surprise":
		m.Issues = append(m.Issues, IssueNervous)
	case "sad", "angry":
		m.Issues = append(m.Issues, IssueLowEnergy)
	}
}

// Summary returns per-question aggregates and is read when an answer is
// submitted.
func (a *VideoAnalyzer) Summary() *models.VideoSummary {
	summary := &models.VideoSummary{
		TotalFramesAnalyzed: a.frameCount,
	}

	if len(a.eyeContactHistory) > 0 {
		avgEye := mean(a.eyeContactHistory)
		avgEng := mean(a.engagementHistory)
		summary.EyeContactScore = &avgEye
		summary.EngagementScore = &avgEng
	}

	return summary
}

func (a *VideoAnalyzer) FrameCount() int {
	return a.frameCount
}

func (a *VideoAnalyzer) Reset() {
	a.frameCount = 0
	a.eyeContactHistory = nil
	a.engagementHistory = nil
}

func decodeFrameFeatures(frameData string) (*frameFeatures, error) {
	// Data URLs arrive as "data:application/json;base64,<payload>".
	if idx := strings.IndexByte(frameData, ','); idx >= 0 {
		frameData = frameData[idx+1:]
	}

	raw, err := base64.StdEncoding.DecodeString(frameData)
	if err != nil {
		return nil, err
	}

	var features frameFeatures
	if err := json.Unmarshal(raw, &features); err != nil {
		return nil, err
	}

	return &features, nil
}

func gazeDirection(offset float64, headPosition string) string {
	if offset < 0.1 {
		return "center"
	}
	switch headPosition {
	case "looking_down":
		return "down"
	case "looking_up":
		return "up"
	case "turned_left":
		return "left"
	case "turned_right":
		return "right"
	}
	return "away"
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
