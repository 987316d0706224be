package analysis

import "time"

// Issue tags form a fixed taxonomy shared by the analyzers and the
// intervention engine.
const (
	IssueLookingDown      = "looking_down"
	IssueLookingUp        = "looking_up"
	IssuePoorEyeContact   = "poor_eye_contact"
	IssueHeadTurned       = "head_turned"
	IssueExcessiveMove    = "excessive_movement"
	IssueLowEngagement    = "low_engagement"
	IssueNervous          = "nervous"
	IssueLowEnergy        = "low_energy"
	IssueSpeakingTooFast  = "speaking_too_fast"
	IssueSpeakingTooSlow  = "speaking_too_slow"
	IssueVolumeTooLow     = "volume_too_low"
	IssueVolumeTooLoud    = "volume_too_loud"
	IssueUnevenVolume     = "inconsistent_volume"
	IssueMonotone         = "monotone_speech"
	IssueExcessiveFillers = "excessive_filler_words"
	IssueAnalysisFailed   = "analysis_failed"
	IssueNoFaceDetected   = "no_face_detected"
)

type VideoMetrics struct {
	Timestamp       time.Time `json:"timestamp"`
	FaceDetected    bool      `json:"face_detected"`
	EyeContactScore float64   `json:"eye_contact_score"`
	GazeDirection   string    `json:"gaze_direction"`
	HeadPosition    string    `json:"head_position"`
	EngagementScore float64   `json:"engagement_score"`
	DominantEmotion string    `json:"dominant_emotion"`
	MovementLevel   float64   `json:"movement_level"`
	Issues          []string  `json:"issues"`
	Warnings        []string  `json:"warnings"`
}

type FillerWord struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

type AudioMetrics struct {
	Timestamp         time.Time    `json:"timestamp"`
	DurationSeconds   float64      `json:"duration_seconds"`
	Transcript        string       `json:"transcript"`
	WordCount         int          `json:"word_count"`
	SpeakingPace      float64      `json:"speaking_pace"`
	VolumeLevel       float64      `json:"volume_level"`
	VolumeConsistency float64      `json:"volume_consistency"`
	PitchHz           float64      `json:"pitch_hz"`
	PitchVariation    float64      `json:"pitch_variation"`
	FillerWordsCount  int          `json:"filler_words_count"`
	FillerWords       []FillerWord `json:"filler_words_detected,omitempty"`
	EnergyLevel       float64      `json:"energy_level"`
	Issues            []string     `json:"issues"`
	Warnings          []string     `json:"warnings"`
}

func (m VideoMetrics) HasIssue(tag string) bool {
	return containsIssue(m.Issues, tag)
}

func (m AudioMetrics) HasIssue(tag string) bool {
	return containsIssue(m.Issues, tag)
}

func containsIssue(issues []string, tag string) bool {
	for _, issue := range issues {
		if issue == tag {
			return true
		}
	}
	return false
}
