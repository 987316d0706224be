package models

import "time"

type SessionStatus string

const (
	StatusPending    SessionStatus = "pending"
	StatusInProgress SessionStatus = "in_progress"
	StatusCompleted  SessionStatus = "completed"
	StatusAborted    SessionStatus = "aborted"
)

type User struct {
	ID                       string    `json:"id"`
	Email                    string    `json:"email"`
	FullName                 string    `json:"full_name"`
	HashedPassword           string    `json:"-"`
	TotalPracticeTimeMinutes float64   `json:"total_practice_time_minutes"`
	CreatedAt                time.Time `json:"created_at"`
	UpdatedAt                time.Time `json:"updated_at"`
}

// Question is immutable once issued to the client.
type Question struct {
	Question   string `json:"question"`
	Type       string `json:"type"` // behavioral, technical, communication, follow_up
	Difficulty string `json:"difficulty"`
	FollowUp   string `json:"follow_up,omitempty"`
	Competency string `json:"competency,omitempty"`
}

type StarComponents struct {
	HasSituation bool `json:"has_situation"`
	HasTask      bool `json:"has_task"`
	HasAction    bool `json:"has_action"`
	HasResult    bool `json:"has_result"`
}

type Evaluation struct {
	RelevanceScore    float64         `json:"relevance_score"`
	ClarityScore      float64         `json:"clarity_score"`
	CompletenessScore float64         `json:"completeness_score"`
	SpecificityScore  float64         `json:"specificity_score"`
	StarComponents    *StarComponents `json:"star_components,omitempty"`
	OverallScore      float64         `json:"overall_score"`
	Strengths         []string        `json:"strengths,omitempty"`
	Improvements      []string        `json:"improvements,omitempty"`
	Feedback          string          `json:"feedback"`
}

// VideoSummary carries per-response aggregates from the video analyzer.
// Score fields are pointers so a missing camera feed reads as absent
// rather than zero.
type VideoSummary struct {
	TotalFramesAnalyzed int      `json:"total_frames_analyzed"`
	EyeContactScore     *float64 `json:"eye_contact_score,omitempty"`
	EngagementScore     *float64 `json:"engagement_score,omitempty"`
}

type AudioSummary struct {
	TotalSpeakingTimeSeconds float64 `json:"total_speaking_time_seconds"`
	TotalWords               int     `json:"total_words"`
	TotalFillerWords         int     `json:"total_filler_words"`
	AverageSpeakingPace      float64 `json:"average_speaking_pace"`
	FillerWordRate           float64 `json:"filler_word_rate"`
	AverageVolume            float64 `json:"average_volume"`
	AveragePitch             float64 `json:"average_pitch"`
	PitchVariation           float64 `json:"pitch_variation"`
}

// Response is append-only: one per answered question, immutable after
// creation.
type Response struct {
	Question        string        `json:"question"`
	Answer          string        `json:"answer"`
	Timestamp       time.Time     `json:"timestamp"`
	DurationSeconds float64       `json:"duration_seconds"`
	VideoSummary    *VideoSummary `json:"video_analytics,omitempty"`
	AudioSummary    *AudioSummary `json:"audio_analytics,omitempty"`
	Evaluation      *Evaluation   `json:"evaluation,omitempty"`
}

type Session struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	JobDescription  string          `json:"job_description"`
	CompanyName     string          `json:"company_name,omitempty"`
	Position        string          `json:"position"`
	Status          SessionStatus   `json:"status"`
	SessionDate     time.Time       `json:"session_date"`
	StartedAt       *time.Time      `json:"started_at,omitempty"`
	DurationMinutes float64         `json:"duration_minutes"`
	Questions       []Question      `json:"generated_questions"`
	Responses       []Response      `json:"responses"`
	OverallScore    *float64        `json:"overall_score,omitempty"`
	Report          *FeedbackReport `json:"feedback,omitempty"`
}

type ComponentScores struct {
	Communication  float64 `json:"communication"`
	Confidence     float64 `json:"confidence"`
	ContentQuality float64 `json:"content_quality"`
	NonVerbal      float64 `json:"non_verbal"`
	Vocal          float64 `json:"vocal"`
}

type DetailedMetrics struct {
	AvgEyeContact            float64 `json:"avg_eye_contact"`
	AvgSpeakingPace          float64 `json:"avg_speaking_pace"`
	FillerWordsCount         int     `json:"filler_words_count"`
	TotalSpeakingTimeSeconds float64 `json:"total_speaking_time_seconds"`
	AvgAnswerRelevance       float64 `json:"avg_answer_relevance"`
	StarMethodUsage          float64 `json:"star_method_usage"`
}

type TimelinePoint struct {
	X int     `json:"x"`
	Y float64 `json:"y"`
}

type Timeline struct {
	SpeakingPace  []TimelinePoint `json:"speaking_pace"`
	Volume        []TimelinePoint `json:"volume"`
	AnswerQuality []TimelinePoint `json:"answer_quality"`
}

// FeedbackReport is computed exactly once per completed session.
type FeedbackReport struct {
	OverallScore     float64         `json:"overall_score"`
	ComponentScores  ComponentScores `json:"component_scores"`
	DetailedMetrics  DetailedMetrics `json:"detailed_metrics"`
	Strengths        []string        `json:"strengths"`
	Improvements     []string        `json:"improvements"`
	DetailedFeedback string          `json:"detailed_feedback"`
	TimelineData     Timeline        `json:"timeline_data"`
	GeneratedAt      time.Time       `json:"generated_at"`
}
