package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/raj-deshmukh6403/AI-Communication-Interview-Helper/internal/storage/models"
	"github.com/raj-deshmukh6403/AI-Communication-Interview-Helper/pkg/logger"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrUserNotFound    = errors.New("user not found")
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT UNIQUE NOT NULL,
		full_name TEXT NOT NULL,
		hashed_password TEXT NOT NULL,
		total_practice_time_minutes REAL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		job_description TEXT NOT NULL,
		company_name TEXT,
		position TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		session_date INTEGER NOT NULL,
		started_at INTEGER,
		duration_minutes REAL DEFAULT 0,
		questions TEXT NOT NULL,
		overall_score REAL,
		report TEXT,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);
	CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);

	CREATE TABLE IF NOT EXISTS responses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		question TEXT NOT NULL,
		answer TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		duration_seconds REAL NOT NULL,
		video_summary TEXT,
		audio_summary TEXT,
		evaluation TEXT,
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_responses_session ON responses(session_id);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) CreateUser(user *models.User) error {
	query := `
		INSERT INTO users (id, email, full_name, hashed_password, total_practice_time_minutes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.Exec(
		query,
		user.ID,
		user.Email,
		user.FullName,
		user.HashedPassword,
		user.TotalPracticeTimeMinutes,
		user.CreatedAt.Unix(),
		user.UpdatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	logger.Info("User created", zap.String("user_id", user.ID), zap.String("email", user.Email))
	return nil
}

func (c *Client) GetUserByEmail(email string) (*models.User, error) {
	query := `SELECT id, email, full_name, hashed_password, total_practice_time_minutes, created_at, updated_at FROM users WHERE email = ?`

	var user models.User
	var createdAt, updatedAt int64

	err := c.db.QueryRow(query, email).Scan(
		&user.ID,
		&user.Email,
		&user.FullName,
		&user.HashedPassword,
		&user.TotalPracticeTimeMinutes,
		&createdAt,
		&updatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)

	return &user, nil
}

func (c *Client) IncrementOwnerStat(userID string, minutes float64) error {
	query := `
		UPDATE users
		SET total_practice_time_minutes = total_practice_time_minutes + ?,
			updated_at = ?
		WHERE id = ?
	`

	_, err := c.db.Exec(query, minutes, time.Now().Unix(), userID)
	if err != nil {
		return fmt.Errorf("failed to update user stats: %w", err)
	}

	return nil
}

func (c *Client) CreateSession(session *models.Session) error {
	questionsJSON, err := json.Marshal(session.Questions)
	if err != nil {
		return fmt.Errorf("failed to marshal questions: %w", err)
	}

	query := `
		INSERT INTO sessions (id, user_id, job_description, company_name, position, status, session_date, questions)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = c.db.Exec(
		query,
		session.ID,
		session.UserID,
		session.JobDescription,
		session.CompanyName,
		session.Position,
		string(session.Status),
		session.SessionDate.Unix(),
		string(questionsJSON),
	)

	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	logger.Info("Session created",
		zap.String("session_id", session.ID),
		zap.String("user_id", session.UserID),
		zap.Int("questions", len(session.Questions)),
	)

	return nil
}

func (c *Client) LoadSession(id string) (*models.Session, error) {
	query := `
		SELECT id, user_id, job_description, company_name, position, status, session_date,
			started_at, duration_minutes, questions, overall_score, report
		FROM sessions WHERE id = ?
	`

	var session models.Session
	var companyName sql.NullString
	var sessionDate int64
	var startedAt sql.NullInt64
	var questionsJSON string
	var overallScore sql.NullFloat64
	var reportJSON sql.NullString

	err := c.db.QueryRow(query, id).Scan(
		&session.ID,
		&session.UserID,
		&session.JobDescription,
		&companyName,
		&session.Position,
		&session.Status,
		&sessionDate,
		&startedAt,
		&session.DurationMinutes,
		&questionsJSON,
		&overallScore,
		&reportJSON,
	)

	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	session.CompanyName = companyName.String
	session.SessionDate = time.Unix(sessionDate, 0)
	if startedAt.Valid {
		t := time.Unix(startedAt.Int64, 0)
		session.StartedAt = &t
	}
	if overallScore.Valid {
		session.OverallScore = &overallScore.Float64
	}

	if err := json.Unmarshal([]byte(questionsJSON), &session.Questions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal questions: %w", err)
	}
	if reportJSON.Valid && reportJSON.String != "" {
		var report models.FeedbackReport
		if err := json.Unmarshal([]byte(reportJSON.String), &report); err != nil {
			return nil, fmt.Errorf("failed to unmarshal report: %w", err)
		}
		session.Report = &report
	}

	responses, err := c.loadResponses(id)
	if err != nil {
		return nil, err
	}
	session.Responses = responses

	return &session, nil
}

func (c *Client) loadResponses(sessionID string) ([]models.Response, error) {
	query := `
		SELECT question, answer, timestamp, duration_seconds, video_summary, audio_summary, evaluation
		FROM responses WHERE session_id = ? ORDER BY id
	`

	rows, err := c.db.Query(query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load responses: %w", err)
	}
	defer rows.Close()

	var responses []models.Response
	for rows.Next() {
		var r models.Response
		var timestamp int64
		var videoJSON, audioJSON, evalJSON sql.NullString

		err := rows.Scan(&r.Question, &r.Answer, &timestamp, &r.DurationSeconds, &videoJSON, &audioJSON, &evalJSON)
		if err != nil {
			return nil, fmt.Errorf("failed to scan response: %w", err)
		}

		r.Timestamp = time.Unix(timestamp, 0)
		if videoJSON.Valid && videoJSON.String != "" {
			var vs models.VideoSummary
			if err := json.Unmarshal([]byte(videoJSON.String), &vs); err == nil {
				r.VideoSummary = &vs
			}
		}
		if audioJSON.Valid && audioJSON.String != "" {
			var as models.AudioSummary
			if err := json.Unmarshal([]byte(audioJSON.String), &as); err == nil {
				r.AudioSummary = &as
			}
		}
		if evalJSON.Valid && evalJSON.String != "" {
			var ev models.Evaluation
			if err := json.Unmarshal([]byte(evalJSON.String), &ev); err == nil {
				r.Evaluation = &ev
			}
		}

		responses = append(responses, r)
	}

	return responses, nil
}

func (c *Client) ListSessionsByUser(userID string, limit int) ([]models.Session, error) {
	query := `
		SELECT id, position, company_name, status, session_date, duration_minutes, overall_score
		FROM sessions
		WHERE user_id = ?
		ORDER BY session_date DESC
		LIMIT ?
	`

	rows, err := c.db.Query(query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		var s models.Session
		var companyName sql.NullString
		var sessionDate int64
		var overallScore sql.NullFloat64

		err := rows.Scan(&s.ID, &s.Position, &companyName, &s.Status, &sessionDate, &s.DurationMinutes, &overallScore)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}

		s.UserID = userID
		s.CompanyName = companyName.String
		s.SessionDate = time.Unix(sessionDate, 0)
		if overallScore.Valid {
			s.OverallScore = &overallScore.Float64
		}

		sessions = append(sessions, s)
	}

	return sessions, nil
}

func (c *Client) AppendResponse(sessionID string, response *models.Response) error {
	marshalOrNull := func(v interface{}) interface{} {
		if v == nil {
			return nil
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		return string(data)
	}

	var videoJSON, audioJSON, evalJSON interface{}
	if response.VideoSummary != nil {
		videoJSON = marshalOrNull(response.VideoSummary)
	}
	if response.AudioSummary != nil {
		audioJSON = marshalOrNull(response.AudioSummary)
	}
	if response.Evaluation != nil {
		evalJSON = marshalOrNull(response.Evaluation)
	}

	query := `
		INSERT INTO responses (session_id, question, answer, timestamp, duration_seconds, video_summary, audio_summary, evaluation)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.Exec(
		query,
		sessionID,
		response.Question,
		response.Answer,
		response.Timestamp.Unix(),
		response.DurationSeconds,
		videoJSON,
		audioJSON,
		evalJSON,
	)

	if err != nil {
		return fmt.Errorf("failed to append response: %w", err)
	}

	logger.Debug("Response appended", zap.String("session_id", sessionID))
	return nil
}

func (c *Client) SetStatus(sessionID string, status models.SessionStatus) error {
	query := `UPDATE sessions SET status = ? WHERE id = ?`

	result, err := c.db.Exec(query, string(status), sessionID)
	if err != nil {
		return fmt.Errorf("failed to set session status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return ErrSessionNotFound
	}

	logger.Info("Session status updated",
		zap.String("session_id", sessionID),
		zap.String("status", string(status)),
	)

	return nil
}

func (c *Client) MarkStarted(sessionID string, startedAt time.Time) error {
	query := `UPDATE sessions SET status = ?, started_at = ? WHERE id = ?`

	_, err := c.db.Exec(query, string(models.StatusInProgress), startedAt.Unix(), sessionID)
	if err != nil {
		return fmt.Errorf("failed to mark session started: %w", err)
	}

	return nil
}

func (c *Client) SaveReport(sessionID string, report *models.FeedbackReport, durationMinutes float64) error {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	query := `
		UPDATE sessions
		SET status = ?, duration_minutes = ?, overall_score = ?, report = ?
		WHERE id = ?
	`

	_, err = c.db.Exec(
		query,
		string(models.StatusCompleted),
		durationMinutes,
		report.OverallScore,
		string(reportJSON),
		sessionID,
	)

	if err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}

	logger.Info("Report saved",
		zap.String("session_id", sessionID),
		zap.Float64("overall_score", report.OverallScore),
	)

	return nil
}
