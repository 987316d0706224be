package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/raj-deshmukh6403/AI-Communication-Interview-Helper/internal/analysis"
	"github.com/raj-deshmukh6403/AI-Communication-Interview-Helper/internal/metrics"
	"github.com/raj-deshmukh6403/AI-Communication-Interview-Helper/internal/monitor"
	"github.com/raj-deshmukh6403/AI-Communication-Interview-Helper/internal/storage/models"
	"github.com/raj-deshmukh6403/AI-Communication-Interview-Helper/pkg/logger"
)

// Conn is the subset of the websocket connection the protocol needs.
// *websocket.Conn satisfies it; tests supply an in-memory fake.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v interface{}) error
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Store is the persistence surface the protocol mutates.
type Store interface {
	LoadSession(id string) (*models.Session, error)
	GetUserByEmail(email string) (*models.User, error)
	MarkStarted(sessionID string, startedAt time.Time) error
	AppendResponse(sessionID string, response *models.Response) error
	SetStatus(sessionID string, status models.SessionStatus) error
	SaveReport(sessionID string, report *models.FeedbackReport, durationMinutes float64) error
	IncrementOwnerStat(userID string, minutes float64) error
}

// Coach covers the language model operations invoked mid-interview.
type Coach interface {
	EvaluateAnswer(ctx context.Context, question, answer, questionType string) *models.Evaluation
	GenerateFollowUp(ctx context.Context, prevQuestion, answer, jobContext string) models.Question
}

// Reporter builds the end-of-session feedback report.
type Reporter interface {
	Generate(ctx context.Context, responses []models.Response, userName string) *models.FeedbackReport
}

// TokenValidator resolves a bearer token to the owner's email.
type TokenValidator interface {
	ValidateToken(token string) (string, error)
}

// Options wires a Protocol's collaborators and tunables.
type Options struct {
	Store             Store
	Coach             Coach
	Reporter          Reporter
	Tokens            TokenValidator
	Registry          *Registry
	Pool              *analysis.Pool
	HeartbeatInterval time.Duration
	Cooldown          time.Duration
}

type inboundMessage struct {
	Type            string  `json:"type"`
	Token           string  `json:"token,omitempty"`
	Data            string  `json:"data,omitempty"`
	Transcript      string  `json:"transcript,omitempty"`
	Timestamp       string  `json:"timestamp,omitempty"`
	Question        string  `json:"question,omitempty"`
	Answer          string  `json:"answer,omitempty"`
	Duration        float64 `json:"duration,omitempty"`
	RequestFollowup bool    `json:"request_followup,omitempty"`
}

// Protocol runs one interview connection: authentication, question flow,
// live analysis, and session completion. One message is fully handled
// before the next is read, so per-connection ordering is guaranteed.
type Protocol struct {
	conn Conn
	opts Options

	sess      *models.Session
	user      *models.User
	firstName string

	video *analysis.VideoAnalyzer
	audio *analysis.AudioAnalyzer
	mon   *monitor.Monitor

	questionIndex int
	authenticated bool
	registered    bool
	writerStarted bool
	completed     bool

	// writes is serviced by a single writer goroutine so the heartbeat
	// ticker and the message loop never interleave frames.
	writes chan outboundWrite

	cancelHeartbeat context.CancelFunc
}

type outboundWrite struct {
	payload    interface{}
	closeFrame []byte
	done       chan error
}

func NewProtocol(conn Conn, opts Options) *Protocol {
	return &Protocol{
		conn:   conn,
		opts:   opts,
		video:  analysis.NewVideoAnalyzer(),
		audio:  analysis.NewAudioAnalyzer(),
		writes: make(chan outboundWrite),
	}
}

// Run services the connection until it closes. It always returns with the
// session released from the registry and the heartbeat stopped.
func (p *Protocol) Run(ctx context.Context, sessionID string) {
	sess, err := p.opts.Store.LoadSession(sessionID)
	if err != nil {
		logger.Warn("Rejecting connection for unknown session", zap.String("session_id", sessionID))
		p.closeWith(websocket.CloseUnsupportedData, "session not found")
		return
	}
	p.sess = sess

	if sess.Status != models.StatusPending {
		logger.Warn("Rejecting connection for non-pending session",
			zap.String("session_id", sessionID),
			zap.String("status", string(sess.Status)))
		p.closeWith(websocket.CloseUnsupportedData, "session already used")
		return
	}

	defer p.cleanup()

	if !p.awaitAuth(ctx) {
		return
	}

	if err := p.begin(ctx); err != nil {
		logger.Error("Failed to start session", zap.String("session_id", sessionID), zap.Error(err))
		p.closeWith(websocket.CloseInternalServerErr, "failed to start session")
		return
	}

	p.loop(ctx)
}

// awaitAuth reads messages until a valid auth arrives. Before
// authentication only ping is answered; everything else is dropped.
func (p *Protocol) awaitAuth(ctx context.Context) bool {
	for {
		msg, err := p.read()
		if err != nil {
			return false
		}

		switch msg.Type {
		case "ping":
			p.sendDirect(map[string]interface{}{"type": "pong", "timestamp": now()})
		case "auth":
			email, err := p.opts.Tokens.ValidateToken(msg.Token)
			if err != nil {
				logger.Warn("Authentication failed", zap.String("session_id", p.sess.ID), zap.Error(err))
				p.closeWith(websocket.ClosePolicyViolation, "authentication failed")
				return false
			}

			user, err := p.opts.Store.GetUserByEmail(email)
			if err != nil {
				logger.Warn("Authenticated user not found", zap.String("email", email))
				p.closeWith(websocket.ClosePolicyViolation, "authentication failed")
				return false
			}

			if user.ID != p.sess.UserID {
				logger.Warn("Session owner mismatch",
					zap.String("session_id", p.sess.ID),
					zap.String("user_id", user.ID))
				p.closeWith(websocket.ClosePolicyViolation, "not your session")
				return false
			}

			p.user = user
			p.firstName = firstName(user.FullName)
			p.authenticated = true
			return true
		default:
			// Unauthenticated traffic is ignored, not answered.
		}
	}
}

// begin transitions the session to in_progress and delivers the opening
// messages.
func (p *Protocol) begin(ctx context.Context) error {
	startedAt := time.Now().UTC()
	if err := p.opts.Store.MarkStarted(p.sess.ID, startedAt); err != nil {
		return fmt.Errorf("failed to mark session started: %w", err)
	}
	p.sess.Status = models.StatusInProgress
	p.sess.StartedAt = &startedAt

	p.mon = monitor.New(p.firstName, p.opts.Cooldown)

	if !p.opts.Registry.Register(p.sess.ID, &Entry{
		SessionID: p.sess.ID,
		UserID:    p.user.ID,
		Monitor:   p.mon,
	}) {
		return fmt.Errorf("session %s already has a live connection", p.sess.ID)
	}
	p.registered = true

	metrics.ActiveSessions.Inc()
	metrics.SessionsStarted.Inc()

	hbCtx, cancel := context.WithCancel(ctx)
	p.cancelHeartbeat = cancel
	p.writerStarted = true
	go p.writer(hbCtx)
	go p.heartbeat(hbCtx)

	p.send(map[string]interface{}{"type": "auth_success", "user": p.user})
	p.send(map[string]interface{}{"type": "session_started", "total_questions": len(p.sess.Questions)})
	p.sendCurrentQuestion()

	logger.Info("Interview session started",
		zap.String("session_id", p.sess.ID),
		zap.String("user_id", p.user.ID),
		zap.Int("questions", len(p.sess.Questions)))

	return nil
}

func (p *Protocol) loop(ctx context.Context) {
	for {
		msg, err := p.read()
		if err != nil {
			p.abortIfActive()
			return
		}

		metrics.MessagesReceived.WithLabelValues(msg.Type).Inc()

		switch msg.Type {
		case "ping":
			p.send(map[string]interface{}{"type": "pong", "timestamp": now()})
		case "video_frame":
			p.handleVideoFrame(ctx, msg)
		case "audio_chunk":
			p.handleAudioChunk(ctx, msg)
		case "answer":
			if !p.handleAnswer(ctx, msg) {
				return
			}
		case "end_session":
			p.handleEndSession(ctx)
			return
		default:
			logger.Debug("Ignoring unknown message type",
				zap.String("session_id", p.sess.ID),
				zap.String("type", msg.Type))
		}
	}
}

func (p *Protocol) handleVideoFrame(ctx context.Context, msg inboundMessage) {
	var vm analysis.VideoMetrics
	start := time.Now()
	if err := p.opts.Pool.Do(ctx, func() {
		vm = p.video.AnalyzeFrame(msg.Data)
	}); err != nil {
		return
	}
	metrics.AnalysisDuration.WithLabelValues("video").Observe(time.Since(start).Seconds())

	p.send(map[string]interface{}{"type": "analytics", "video": vm, "timestamp": now()})

	if iv := p.mon.CheckVideo(vm); iv != nil {
		p.sendIntervention(iv)
	}
}

func (p *Protocol) handleAudioChunk(ctx context.Context, msg inboundMessage) {
	var am analysis.AudioMetrics
	start := time.Now()
	if err := p.opts.Pool.Do(ctx, func() {
		am = p.audio.AnalyzeChunk(msg.Data, msg.Transcript)
	}); err != nil {
		return
	}
	metrics.AnalysisDuration.WithLabelValues("audio").Observe(time.Since(start).Seconds())

	p.send(map[string]interface{}{"type": "analytics", "audio": am, "timestamp": now()})

	if iv := p.mon.CheckAudio(am); iv != nil {
		p.sendIntervention(iv)
	}
}

// handleAnswer evaluates the answer, persists the response, and advances
// the question flow. Returns false when the connection must close.
func (p *Protocol) handleAnswer(ctx context.Context, msg inboundMessage) bool {
	if p.questionIndex >= len(p.sess.Questions) {
		logger.Debug("Ignoring answer after question list exhausted", zap.String("session_id", p.sess.ID))
		return true
	}

	questionType := p.sess.Questions[p.questionIndex].Type
	evaluation := p.opts.Coach.EvaluateAnswer(ctx, msg.Question, msg.Answer, questionType)

	response := &models.Response{
		Question:        msg.Question,
		Answer:          msg.Answer,
		Timestamp:       time.Now().UTC(),
		DurationSeconds: msg.Duration,
		VideoSummary:    p.video.Summary(),
		AudioSummary:    p.audio.Stats(),
		Evaluation:      evaluation,
	}

	if err := p.opts.Store.AppendResponse(p.sess.ID, response); err != nil {
		logger.Error("Failed to persist response", zap.String("session_id", p.sess.ID), zap.Error(err))
		p.send(map[string]interface{}{"type": "error", "error": "failed to save your answer"})
		p.closeWith(websocket.CloseInternalServerErr, "persistence failure")
		p.abortIfActive()
		return false
	}
	p.sess.Responses = append(p.sess.Responses, *response)

	p.send(map[string]interface{}{
		"type":     "answer_feedback",
		"feedback": evaluation,
		"score":    evaluation.OverallScore,
	})

	// Per-question state starts fresh for the next question.
	p.video.Reset()
	p.audio.Reset()
	p.mon.Reset()

	p.questionIndex++

	if msg.RequestFollowup && p.questionIndex < len(p.sess.Questions) {
		followUp := p.opts.Coach.GenerateFollowUp(ctx, msg.Question, msg.Answer, p.sess.JobDescription)
		p.sess.Questions[p.questionIndex] = followUp
	}

	p.sendCurrentQuestion()
	return true
}

func (p *Protocol) sendCurrentQuestion() {
	if p.questionIndex >= len(p.sess.Questions) {
		p.send(map[string]interface{}{
			"type":    "all_questions_complete",
			"message": "You have answered all questions. End the session to receive your feedback report.",
		})
		return
	}

	p.send(map[string]interface{}{
		"type":            "next_question",
		"question":        p.sess.Questions[p.questionIndex],
		"question_number": p.questionIndex + 1,
		"total_questions": len(p.sess.Questions),
	})
}

func (p *Protocol) handleEndSession(ctx context.Context) {
	durationMinutes := 0.0
	if p.sess.StartedAt != nil {
		durationMinutes = time.Since(*p.sess.StartedAt).Minutes()
	}

	report := p.opts.Reporter.Generate(ctx, p.sess.Responses, p.firstName)

	if err := p.opts.Store.SaveReport(p.sess.ID, report, durationMinutes); err != nil {
		logger.Error("Failed to save feedback report", zap.String("session_id", p.sess.ID), zap.Error(err))
		p.send(map[string]interface{}{"type": "error", "error": "failed to save your report"})
		p.closeWith(websocket.CloseInternalServerErr, "persistence failure")
		p.abortIfActive()
		return
	}

	if err := p.opts.Store.IncrementOwnerStat(p.user.ID, durationMinutes); err != nil {
		logger.Warn("Failed to update practice time", zap.String("user_id", p.user.ID), zap.Error(err))
	}

	p.sess.Status = models.StatusCompleted
	p.completed = true
	metrics.SessionsCompleted.WithLabelValues("completed").Inc()
	metrics.SessionScore.Observe(report.OverallScore)

	p.send(map[string]interface{}{
		"type":       "session_complete",
		"feedback":   report,
		"session_id": p.sess.ID,
	})
	p.closeWith(websocket.CloseNormalClosure, "session complete")

	logger.Info("Interview session completed",
		zap.String("session_id", p.sess.ID),
		zap.Float64("overall_score", report.OverallScore),
		zap.Float64("duration_minutes", durationMinutes),
		zap.Int("interventions_delivered", len(p.mon.History())))
}

// abortIfActive marks an in-flight session aborted after an abnormal
// disconnect. Completed sessions are left alone.
func (p *Protocol) abortIfActive() {
	if !p.authenticated || p.completed {
		return
	}
	if err := p.opts.Store.SetStatus(p.sess.ID, models.StatusAborted); err != nil {
		logger.Error("Failed to mark session aborted", zap.String("session_id", p.sess.ID), zap.Error(err))
	}
	p.sess.Status = models.StatusAborted
	metrics.SessionsCompleted.WithLabelValues("aborted").Inc()
	logger.Info("Interview session aborted", zap.String("session_id", p.sess.ID))
}

func (p *Protocol) cleanup() {
	if p.cancelHeartbeat != nil {
		p.cancelHeartbeat()
	}
	// Keyed on registration, not authentication: a connection that lost the
	// duplicate-register race must not evict the winner's entry.
	if p.registered {
		p.opts.Registry.Unregister(p.sess.ID)
		metrics.ActiveSessions.Dec()
	}
	p.conn.Close()
}

func (p *Protocol) heartbeat(ctx context.Context) {
	interval := p.opts.HeartbeatInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.enqueue(ctx, map[string]interface{}{"type": "heartbeat", "timestamp": now()})
		}
	}
}

// writer is the only goroutine that touches the connection for outbound
// frames once the session is live.
func (p *Protocol) writer(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case w := <-p.writes:
			var err error
			if w.closeFrame != nil {
				err = p.conn.WriteMessage(websocket.CloseMessage, w.closeFrame)
			} else {
				err = p.conn.WriteJSON(w.payload)
			}
			if w.done != nil {
				w.done <- err
			}
		}
	}
}

// send routes a payload through the writer goroutine and waits for the
// write to finish, preserving outbound ordering from the message loop.
func (p *Protocol) send(payload interface{}) {
	done := make(chan error, 1)
	select {
	case p.writes <- outboundWrite{payload: payload, done: done}:
		if err := <-done; err != nil {
			logger.Debug("Failed to write message", zap.String("session_id", p.sess.ID), zap.Error(err))
		}
	case <-time.After(5 * time.Second):
		logger.Warn("Dropped outbound message, writer stalled", zap.String("session_id", p.sess.ID))
	}
}

func (p *Protocol) enqueue(ctx context.Context, payload interface{}) {
	select {
	case p.writes <- outboundWrite{payload: payload}:
	case <-ctx.Done():
	}
}

// sendDirect writes without the writer goroutine, used before the session
// is live and the writer started.
func (p *Protocol) sendDirect(payload interface{}) {
	if err := p.conn.WriteJSON(payload); err != nil {
		logger.Debug("Failed to write message", zap.Error(err))
	}
}

func (p *Protocol) sendIntervention(iv *monitor.Intervention) {
	p.send(map[string]interface{}{
		"type":         "intervention",
		"intervention": iv,
		"timestamp":    now(),
	})
}

func (p *Protocol) read() (inboundMessage, error) {
	var msg inboundMessage
	_, raw, err := p.conn.ReadMessage()
	if err != nil {
		return msg, err
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		logger.Debug("Ignoring malformed message", zap.Error(err))
		return inboundMessage{Type: ""}, nil
	}
	return msg, nil
}

// closeWith delivers the close frame through the writer goroutine once it
// is live, so the frame never races a heartbeat mid-write.
func (p *Protocol) closeWith(code int, reason string) {
	data := websocket.FormatCloseMessage(code, reason)
	if p.writerStarted {
		done := make(chan error, 1)
		select {
		case p.writes <- outboundWrite{closeFrame: data, done: done}:
			if err := <-done; err != nil {
				logger.Debug("Failed to write close frame", zap.Error(err))
			}
		case <-time.After(5 * time.Second):
			logger.Warn("Dropped close frame, writer stalled", zap.String("session_id", p.sess.ID))
		}
	} else if err := p.conn.WriteMessage(websocket.CloseMessage, data); err != nil {
		logger.Debug("Failed to write close frame", zap.Error(err))
	}
	p.conn.Close()
}

func firstName(fullName string) string {
	fields := strings.Fields(fullName)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
