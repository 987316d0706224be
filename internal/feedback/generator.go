package feedback

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/raj-deshmukh6403/AI-Communication-Interview-Helper/internal/storage/models"
	"github.com/raj-deshmukh6403/AI-Communication-Interview-Helper/pkg/logger"
)

// Defaults substituted for any metric a response never captured, so a
// candidate with no camera or a failed evaluation still gets a report.
const (
	defaultEyeContact     = 70.0
	defaultEngagement     = 70.0
	defaultPace           = 150.0
	defaultVolume         = 50.0
	defaultPitchVariation = 15.0
	defaultRelevance      = 75.0
	defaultClarity        = 75.0
	defaultStarUsage      = 50.0
)

// Summarizer produces the narrative paragraph of a report. Failures are
// absorbed by a templated fallback.
type Summarizer interface {
	Summarize(ctx context.Context, report *models.FeedbackReport, userName string) (string, error)
}

// Generator aggregates per-response analytics and evaluations into a
// session report. It is stateless; one instance serves all sessions.
type Generator struct {
	summarizer Summarizer
}

func NewGenerator(summarizer Summarizer) *Generator {
	return &Generator{summarizer: summarizer}
}

// Generate computes the full feedback report for a finished session. It
// never returns an error: a session with no responses yields a zeroed
// report with a placeholder narrative.
func (g *Generator) Generate(ctx context.Context, responses []models.Response, userName string) *models.FeedbackReport {
	if len(responses) == 0 {
		return &models.FeedbackReport{
			Strengths:        []string{},
			Improvements:     []string{},
			DetailedFeedback: "No responses were recorded in this session, so no performance feedback is available. Complete at least one question in your next practice to receive a detailed report.",
			TimelineData: models.Timeline{
				SpeakingPace:  []models.TimelinePoint{},
				Volume:        []models.TimelinePoint{},
				AnswerQuality: []models.TimelinePoint{},
			},
			GeneratedAt: time.Now().UTC(),
		}
	}

	m := collectMetrics(responses)

	nonVerbal := (m.avgEyeContact + m.avgEngagement) / 2

	paceScore := clamp(100 - math.Abs(m.avgPace-defaultPace)/defaultPace*100)
	volumeScore := clamp(m.avgVolume)
	pitchScore := scorePitchVariation(m.avgPitchVariation)
	fillerPenalty := math.Min(30, 2*float64(m.totalFillers))
	vocal := clamp((paceScore+volumeScore+pitchScore)/3 - fillerPenalty)

	content := (m.avgRelevance + m.avgClarity + m.starUsage) / 3
	confidence := (vocal + nonVerbal) / 2
	communication := 0.3*nonVerbal + 0.3*vocal + 0.4*content
	overall := (communication + confidence + content) / 3

	report := &models.FeedbackReport{
		OverallScore: round2(overall),
		ComponentScores: models.ComponentScores{
			Communication:  round2(communication),
			Confidence:     round2(confidence),
			ContentQuality: round2(content),
			NonVerbal:      round2(nonVerbal),
			Vocal:          round2(vocal),
		},
		DetailedMetrics: models.DetailedMetrics{
			AvgEyeContact:            round2(m.avgEyeContact),
			AvgSpeakingPace:          round2(m.avgPace),
			FillerWordsCount:         m.totalFillers,
			TotalSpeakingTimeSeconds: round2(m.totalSpeakingTime),
			AvgAnswerRelevance:       round2(m.avgRelevance),
			StarMethodUsage:          round2(m.starUsage),
		},
		TimelineData: buildTimeline(responses),
		GeneratedAt:  time.Now().UTC(),
	}

	report.Strengths, report.Improvements = assess(m, confidence)
	report.DetailedFeedback = g.narrative(ctx, report, userName)

	return report
}

type sessionMetrics struct {
	avgEyeContact     float64
	avgEngagement     float64
	avgPace           float64
	avgVolume         float64
	avgPitchVariation float64
	avgRelevance      float64
	avgClarity        float64
	starUsage         float64
	totalFillers      int
	totalSpeakingTime float64
}

func collectMetrics(responses []models.Response) sessionMetrics {
	var m sessionMetrics
	n := float64(len(responses))

	for _, r := range responses {
		eye, engagement := defaultEyeContact, defaultEngagement
		if v := r.VideoSummary; v != nil {
			if v.EyeContactScore != nil {
				eye = *v.EyeContactScore
			}
			if v.EngagementScore != nil {
				engagement = *v.EngagementScore
			}
		}
		m.avgEyeContact += eye
		m.avgEngagement += engagement

		pace, volume, variation := defaultPace, defaultVolume, defaultPitchVariation
		if a := r.AudioSummary; a != nil {
			if a.AverageSpeakingPace > 0 {
				pace = a.AverageSpeakingPace
			}
			if a.AverageVolume > 0 {
				volume = a.AverageVolume
			}
			if a.PitchVariation > 0 {
				variation = a.PitchVariation
			}
			m.totalFillers += a.TotalFillerWords
			m.totalSpeakingTime += a.TotalSpeakingTimeSeconds
		}
		m.avgPace += pace
		m.avgVolume += volume
		m.avgPitchVariation += variation

		relevance, clarity, star := defaultRelevance, defaultClarity, defaultStarUsage
		if e := r.Evaluation; e != nil {
			relevance = e.RelevanceScore
			clarity = e.ClarityScore
			if e.StarComponents != nil {
				star = starFraction(e.StarComponents)
			}
		}
		m.avgRelevance += relevance
		m.avgClarity += clarity
		m.starUsage += star
	}

	m.avgEyeContact /= n
	m.avgEngagement /= n
	m.avgPace /= n
	m.avgVolume /= n
	m.avgPitchVariation /= n
	m.avgRelevance /= n
	m.avgClarity /= n
	m.starUsage /= n

	return m
}

func starFraction(s *models.StarComponents) float64 {
	count := 0
	for _, present := range []bool{s.HasSituation, s.HasTask, s.HasAction, s.HasResult} {
		if present {
			count++
		}
	}
	return float64(count) / 4 * 100
}

// scorePitchVariation rewards moderate variation. Flat delivery decays
// toward 50, erratic delivery toward 0.
func scorePitchVariation(v float64) float64 {
	switch {
	case v >= 10 && v <= 30:
		return 100
	case v < 10:
		return 50 + v/10*50
	default:
		return math.Max(0, 100-(v-30))
	}
}

func assess(m sessionMetrics, confidence float64) (strengths, improvements []string) {
	strengths = []string{}
	improvements = []string{}

	if m.avgEyeContact >= 70 {
		strengths = append(strengths, "Excellent eye contact throughout the interview")
	} else if m.avgEyeContact < 50 {
		improvements = append(improvements, "Work on maintaining consistent eye contact with the camera")
	}

	if m.avgPace >= 140 && m.avgPace <= 160 {
		strengths = append(strengths, "Well-paced speech that is easy to follow")
	} else if m.avgPace > 180 {
		improvements = append(improvements, "Slow down your speaking pace; aim for around 150 words per minute")
	} else if m.avgPace > 0 && m.avgPace < 120 {
		improvements = append(improvements, "Pick up your speaking pace slightly to sound more confident")
	}

	if m.totalFillers < 5 {
		strengths = append(strengths, "Minimal use of filler words")
	} else if m.totalFillers > 15 {
		improvements = append(improvements, "Reduce filler words like 'um' and 'uh'; pause silently instead")
	}

	if m.avgRelevance >= 80 {
		strengths = append(strengths, "Answers were highly relevant to the questions asked")
	} else if m.avgRelevance < 60 {
		improvements = append(improvements, "Focus on answering the specific question being asked")
	}

	if m.starUsage >= 75 {
		strengths = append(strengths, "Strong use of the STAR method to structure behavioral answers")
	} else if m.starUsage < 50 {
		improvements = append(improvements, "Structure behavioral answers with the STAR method (Situation, Task, Action, Result)")
	}

	if confidence >= 75 {
		strengths = append(strengths, "Projected confidence through voice and body language")
	} else if confidence < 60 {
		improvements = append(improvements, "Build confidence through practice; steady volume and posture help")
	}

	return strengths, improvements
}

func buildTimeline(responses []models.Response) models.Timeline {
	tl := models.Timeline{
		SpeakingPace:  make([]models.TimelinePoint, 0, len(responses)),
		Volume:        make([]models.TimelinePoint, 0, len(responses)),
		AnswerQuality: make([]models.TimelinePoint, 0, len(responses)),
	}

	for i, r := range responses {
		x := i + 1

		pace, volume := defaultPace, defaultVolume
		if a := r.AudioSummary; a != nil {
			if a.AverageSpeakingPace > 0 {
				pace = a.AverageSpeakingPace
			}
			if a.AverageVolume > 0 {
				volume = a.AverageVolume
			}
		}

		quality := defaultRelevance
		if r.Evaluation != nil {
			quality = r.Evaluation.OverallScore
		}

		tl.SpeakingPace = append(tl.SpeakingPace, models.TimelinePoint{X: x, Y: round2(pace)})
		tl.Volume = append(tl.Volume, models.TimelinePoint{X: x, Y: round2(volume)})
		tl.AnswerQuality = append(tl.AnswerQuality, models.TimelinePoint{X: x, Y: round2(quality)})
	}

	return tl
}

func (g *Generator) narrative(ctx context.Context, report *models.FeedbackReport, userName string) string {
	if g.summarizer != nil {
		text, err := g.summarizer.Summarize(ctx, report, userName)
		if err == nil && text != "" {
			return text
		}
		if err != nil {
			logger.Warn("Narrative generation failed, using template", zap.Error(err))
		}
	}
	return templateNarrative(report, userName)
}

func templateNarrative(report *models.FeedbackReport, userName string) string {
	name := userName
	if name == "" {
		name = "You"
	}

	level := "good effort with clear areas to develop"
	switch {
	case report.OverallScore >= 85:
		level = "excellent mastery of interview skills"
	case report.OverallScore >= 70:
		level = "strong competency with room to polish"
	case report.OverallScore >= 55:
		level = "solid fundamentals to build on"
	}

	text := fmt.Sprintf("%s scored %.1f overall, showing %s. Communication came in at %.1f, confidence at %.1f, and content quality at %.1f.",
		name, report.OverallScore, level,
		report.ComponentScores.Communication,
		report.ComponentScores.Confidence,
		report.ComponentScores.ContentQuality)

	if len(report.Strengths) > 0 {
		text += fmt.Sprintf(" A standout strength: %s.", lowercaseFirst(report.Strengths[0]))
	}
	if len(report.Improvements) > 0 {
		text += fmt.Sprintf(" The biggest opportunity: %s.", lowercaseFirst(report.Improvements[0]))
	}

	return text
}

func lowercaseFirst(s string) string {
	if s == "" {
		return s
	}
	if s[0] >= 'A' && s[0] <= 'Z' {
		return string(s[0]+32) + s[1:]
	}
	return s
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
