package monitor

import (
	"fmt"
	"time"

	"github.com/raj-deshmukh6403/AI-Communication-Interview-Helper/internal/analysis"
	"github.com/raj-deshmukh6403/AI-Communication-Interview-Helper/internal/metrics"
)

const defaultCooldown = 15 * time.Second

// Severity communicates how urgently the client should surface a nudge.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Intervention is a real-time coaching nudge pushed to the candidate.
type Intervention struct {
	Type            string   `json:"type"`
	Message         string   `json:"message"`
	Severity        Severity `json:"severity"`
	ShouldInterrupt bool     `json:"should_interrupt"`
}

// thresholds maps persistent issue tags to how many consecutive-ish
// observations it takes before a nudge fires. Immediate audio issues
// (pace, fillers) are handled separately and never counted here.
var thresholds = map[string]int{
	analysis.IssueLookingDown:     5,
	analysis.IssueLookingUp:       5,
	analysis.IssuePoorEyeContact:  10,
	analysis.IssueSpeakingTooFast: 3,
	analysis.IssueExcessiveMove:   8,
	analysis.IssueLowEngagement:   15,
	analysis.IssueNervous:         7,
	analysis.IssueMonotone:        10,
}

// videoIssueOrder fixes which persistent issue wins when several cross
// their threshold in the same frame.
var videoIssueOrder = []string{
	analysis.IssueLookingDown,
	analysis.IssueLookingUp,
	analysis.IssuePoorEyeContact,
	analysis.IssueExcessiveMove,
	analysis.IssueLowEngagement,
	analysis.IssueNervous,
}

// Monitor turns per-frame and per-chunk issue observations into paced
// interventions. Counters rise while an issue persists and decay while it
// does not, so brief glances away never trigger a nudge. Not safe for
// concurrent use; the session loop owns it.
type Monitor struct {
	counters         map[string]int
	lastIntervention time.Time
	cooldown         time.Duration
	userName         string
	history          []Intervention

	// now is swappable in tests to step through cooldown windows.
	now func() time.Time
}

func New(userName string, cooldown time.Duration) *Monitor {
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	return &Monitor{
		counters: make(map[string]int),
		cooldown: cooldown,
		userName: userName,
		now:      time.Now,
	}
}

// CheckVideo updates persistence counters from a frame's issues and returns
// an intervention when one crosses its threshold outside the cooldown
// window. At most one intervention is returned per frame.
func (m *Monitor) CheckVideo(vm analysis.VideoMetrics) *Intervention {
	if !m.cooledDown() {
		return nil
	}

	for _, issue := range videoIssueOrder {
		if vm.HasIssue(issue) {
			m.counters[issue]++
		} else if m.counters[issue] > 0 {
			m.counters[issue]--
		}
	}

	for _, issue := range videoIssueOrder {
		if m.counters[issue] >= thresholds[issue] {
			return m.fire(issue)
		}
	}

	return nil
}

// CheckAudio inspects a chunk's issues. Extreme pace and heavy filler use
// interrupt immediately; monotone delivery accumulates like a video issue.
func (m *Monitor) CheckAudio(am analysis.AudioMetrics) *Intervention {
	if !m.cooledDown() {
		return nil
	}

	if am.SpeakingPace > 200 {
		return m.fireImmediate(analysis.IssueSpeakingTooFast, SeverityHigh, true)
	}

	if am.FillerWordsCount > 5 {
		return m.fireImmediate(analysis.IssueExcessiveFillers, SeverityMedium, false)
	}

	if am.HasIssue(analysis.IssueMonotone) {
		m.counters[analysis.IssueMonotone]++
		if m.counters[analysis.IssueMonotone] >= thresholds[analysis.IssueMonotone] {
			return m.fire(analysis.IssueMonotone)
		}
	} else if m.counters[analysis.IssueMonotone] > 0 {
		m.counters[analysis.IssueMonotone]--
	}

	return nil
}

func (m *Monitor) cooledDown() bool {
	return m.lastIntervention.IsZero() || m.now().Sub(m.lastIntervention) >= m.cooldown
}

func (m *Monitor) fire(issue string) *Intervention {
	m.counters[issue] = 0
	iv := &Intervention{
		Type:            issue,
		Message:         m.message(issue),
		Severity:        severityFor(issue),
		ShouldInterrupt: shouldInterrupt(issue),
	}
	m.record(iv)
	return iv
}

func (m *Monitor) fireImmediate(issue string, sev Severity, interrupt bool) *Intervention {
	iv := &Intervention{
		Type:            issue,
		Message:         m.message(issue),
		Severity:        sev,
		ShouldInterrupt: interrupt,
	}
	m.record(iv)
	return iv
}

func (m *Monitor) record(iv *Intervention) {
	m.lastIntervention = m.now()
	m.history = append(m.history, *iv)
	metrics.InterventionsTriggered.WithLabelValues(iv.Type).Inc()
}

func (m *Monitor) message(issue string) string {
	name := m.userName
	if name == "" {
		name = "there"
	}

	switch issue {
	case analysis.IssueLookingDown:
		return fmt.Sprintf("Hey %s, try to look at the camera instead of looking down. It shows confidence!", name)
	case analysis.IssueLookingUp:
		return fmt.Sprintf("%s, keep your gaze on the camera rather than looking up. Stay present!", name)
	case analysis.IssuePoorEyeContact:
		return fmt.Sprintf("%s, remember to maintain eye contact with the camera. It helps you connect with the interviewer.", name)
	case analysis.IssueExcessiveMove:
		return fmt.Sprintf("Try to sit still, %s. Excessive movement can be distracting during interviews.", name)
	case analysis.IssueLowEngagement:
		return fmt.Sprintf("%s, try to show more energy and enthusiasm. Interviewers respond to engagement!", name)
	case analysis.IssueNervous:
		return fmt.Sprintf("Take a deep breath, %s. You're doing well, stay relaxed and confident.", name)
	case analysis.IssueSpeakingTooFast:
		return fmt.Sprintf("Slow down a bit, %s! Take a pause and speak at a comfortable pace.", name)
	case analysis.IssueExcessiveFillers:
		return fmt.Sprintf("%s, try to reduce filler words. Brief pauses are better than filler words.", name)
	case analysis.IssueMonotone:
		return fmt.Sprintf("Add some vocal variety, %s. Varying your tone makes your answers more engaging.", name)
	default:
		return fmt.Sprintf("Keep it up, %s!", name)
	}
}

func severityFor(issue string) Severity {
	switch issue {
	case analysis.IssuePoorEyeContact, analysis.IssueLowEngagement:
		return SeverityHigh
	default:
		return SeverityMedium
	}
}

// Counter-driven video issues all interrupt; monotone delivery is the one
// counter-driven issue surfaced as a passive annotation.
func shouldInterrupt(issue string) bool {
	return issue != analysis.IssueMonotone
}

// History returns every intervention fired so far, in order.
func (m *Monitor) History() []Intervention {
	out := make([]Intervention, len(m.history))
	copy(out, m.history)
	return out
}

// Reset clears persistence counters and the cooldown between questions.
// The intervention history survives for the session-end summary.
func (m *Monitor) Reset() {
	m.counters = make(map[string]int)
	m.lastIntervention = time.Time{}
}
