package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/raj-deshmukh6403/AI-Communication-Interview-Helper/internal/metrics"
	"github.com/raj-deshmukh6403/AI-Communication-Interview-Helper/internal/storage/models"
	"github.com/raj-deshmukh6403/AI-Communication-Interview-Helper/pkg/circuitbreaker"
	"github.com/raj-deshmukh6403/AI-Communication-Interview-Helper/pkg/logger"
	"github.com/raj-deshmukh6403/AI-Communication-Interview-Helper/pkg/retry"
)

type Client struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

type CompletionRequest struct {
	Operation    string
	SystemPrompt string
	UserPrompt   string
	Temperature  float32
	MaxTokens    int
}

func NewClient(apiKey, model string, temperature float32, maxTokens, timeoutSec int) *Client {
	client := openai.NewClient(apiKey)

	if timeoutSec <= 0 {
		timeoutSec = 60
	}

	cb := circuitbreaker.NewCircuitBreaker("llm", circuitbreaker.Config{
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	logger.Info("LLM client initialized", zap.String("model", model))

	return &Client{
		client:      client,
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		timeout:     time.Duration(timeoutSec) * time.Second,
		cb:          cb,
		retryConfig: retryConfig,
	}
}

func (c *Client) complete(ctx context.Context, req CompletionRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	operation := req.Operation
	if operation == "" {
		operation = "completion"
	}

	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.temperature
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	messages := []openai.ChatCompletionMessage{
		{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		},
		{
			Role:    openai.ChatMessageRoleUser,
			Content: req.UserPrompt,
		},
	}

	var result string

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.client.CreateChatCompletion(
				ctx,
				openai.ChatCompletionRequest{
					Model:       c.model,
					Messages:    messages,
					Temperature: temperature,
					MaxTokens:   maxTokens,
				},
			)

			if err != nil {
				return fmt.Errorf("failed to create completion: %w", err)
			}
			if len(resp.Choices) == 0 {
				return fmt.Errorf("completion returned no choices")
			}

			logger.Debug("LLM completion generated",
				zap.Int("prompt_tokens", resp.Usage.PromptTokens),
				zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			)

			result = resp.Choices[0].Message.Content
			return nil
		})
	})

	if err != nil {
		metrics.LLMRequests.WithLabelValues(operation, "error").Inc()
		return "", err
	}

	metrics.LLMRequests.WithLabelValues(operation, "success").Inc()
	return strings.TrimSpace(result), nil
}

// GenerateQuestions produces the interview question set for a job context.
// On any LLM failure a fixed default set is returned instead of an error.
func (c *Client) GenerateQuestions(ctx context.Context, jobDescription, resumeText, position string, numQuestions int) []models.Question {
	resumeSection := ""
	if resumeText != "" {
		if len(resumeText) > 1500 {
			resumeText = resumeText[:1500]
		}
		resumeSection = fmt.Sprintf("Candidate's Resume:\n%s\n", resumeText)
	}

	jobContext := jobDescription
	if len(jobContext) > 500 {
		jobContext = jobContext[:500]
	}

	systemPrompt := `You are an expert HR interviewer conducting interviews for top tech companies.

Generate interview questions following these guidelines:
- 40% behavioral (STAR method), 40% technical/role-specific, 20% communication/cultural fit
- Questions must be specific to the role and job description
- Avoid generic questions like "tell me about yourself"
- Each question should assess a key competency

Return ONLY a valid JSON array:
[{"question": "...", "type": "behavioral|technical|communication", "follow_up": "...", "difficulty": "easy|medium|hard", "competency": "..."}]

JSON only, no markdown, no explanation.`

	userPrompt := fmt.Sprintf(`Position: %s
Company Context: %s

%s
Generate exactly %d interview questions.`, position, jobContext, resumeSection, numQuestions)

	content, err := c.complete(ctx, CompletionRequest{
		Operation:    "generate_questions",
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Temperature:  0.7,
		MaxTokens:    2000,
	})

	if err != nil {
		logger.Warn("Failed to generate questions, using defaults", zap.Error(err))
		return DefaultQuestions(position)
	}

	var questions []models.Question
	if err := json.Unmarshal([]byte(stripJSONFences(content)), &questions); err != nil || len(questions) == 0 {
		logger.Warn("Failed to parse generated questions, using defaults", zap.Error(err))
		return DefaultQuestions(position)
	}

	logger.Info("Questions generated", zap.Int("count", len(questions)), zap.String("position", position))
	return questions
}

// GenerateFollowUp asks for one deeper question based on the previous answer.
func (c *Client) GenerateFollowUp(ctx context.Context, previousQuestion, userAnswer, jobContext string) models.Question {
	systemPrompt := `You are conducting an interview. Based on the candidate's answer, generate ONE relevant follow-up question that digs deeper.

Generate a single, specific follow-up question (maximum 30 words) that:
- Asks for more details or clarification
- Explores a specific point they mentioned
- Tests deeper understanding

Return ONLY the question text, nothing else.`

	contextSection := ""
	if jobContext != "" {
		contextSection = fmt.Sprintf("\nContext: %s", jobContext)
	}

	userPrompt := fmt.Sprintf(`Previous Question: %s

Candidate's Answer: %s%s`, previousQuestion, userAnswer, contextSection)

	content, err := c.complete(ctx, CompletionRequest{
		Operation:    "generate_followup",
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Temperature:  0.8,
		MaxTokens:    100,
	})

	if err != nil || content == "" {
		logger.Warn("Failed to generate follow-up, using fallback", zap.Error(err))
		content = "Can you elaborate more on that specific point?"
	}

	return models.Question{
		Question:   content,
		Type:       "follow_up",
		Difficulty: "medium",
	}
}

// EvaluateAnswer scores a single answer. A behavioral question additionally
// gets STAR-component detection. Failures degrade to a neutral evaluation.
func (c *Client) EvaluateAnswer(ctx context.Context, question, answer, questionType string) *models.Evaluation {
	starMethodSection := ""
	starJSONSection := ""
	if questionType == "behavioral" {
		starMethodSection = `5. STAR METHOD:
   - Situation: Did they describe the context?
   - Task: Was their responsibility clear?
   - Action: Did they explain what THEY did?
   - Result: Was there a measurable outcome?`
		starJSONSection = `"star_components": {"has_situation": true, "has_task": true, "has_action": true, "has_result": true},`
	}

	systemPrompt := fmt.Sprintf(`You are evaluating an interview response with 10+ years of HR experience.

EVALUATION CRITERIA:
1. RELEVANCE (0-100): Does it directly answer the question?
2. CLARITY (0-100): Is it well-structured and easy to understand?
3. COMPLETENESS (0-100): Does it provide sufficient detail and examples?
4. SPECIFICITY (0-100): Are there concrete examples vs vague statements?
%s

Be constructive but honest. Grade like a tough but fair interviewer.

Return ONLY this JSON (no markdown):
{"relevance_score": 75, "clarity_score": 75, "completeness_score": 75, "specificity_score": 75, %s "overall_score": 75, "strengths": ["..."], "improvements": ["..."], "feedback": "2-3 sentences of constructive feedback"}`, starMethodSection, starJSONSection)

	userPrompt := fmt.Sprintf(`QUESTION TYPE: %s
QUESTION: %s

CANDIDATE'S ANSWER: %s`, questionType, question, answer)

	content, err := c.complete(ctx, CompletionRequest{
		Operation:    "evaluate_answer",
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Temperature:  0.3,
		MaxTokens:    500,
	})

	if err != nil {
		logger.Warn("Failed to evaluate answer, using defaults", zap.Error(err))
		return defaultEvaluation()
	}

	var evaluation models.Evaluation
	if err := json.Unmarshal([]byte(stripJSONFences(content)), &evaluation); err != nil {
		logger.Warn("Failed to parse evaluation, using defaults", zap.Error(err))
		return defaultEvaluation()
	}

	return &evaluation
}

// Summarize writes the narrative paragraph of the final report. Unlike the
// other operations the fallback lives in the caller, which has the scores
// needed to build a templated substitute.
func (c *Client) Summarize(ctx context.Context, report *models.FeedbackReport, userName string) (string, error) {
	systemPrompt := `You are an experienced career coach providing feedback on an interview practice session.

Write a comprehensive 3-4 paragraph feedback report that:
1. Starts with an encouraging overview of their performance
2. Discusses their main strengths with specific examples
3. Addresses areas for improvement with actionable advice
4. Ends with motivational next steps

Keep the tone supportive, constructive, and professional.`

	userPrompt := fmt.Sprintf(`User: %s
Overall Score: %.1f/100

Key Strengths:
%s

Areas for Improvement:
%s

Performance Metrics:
- Communication: %.1f/100
- Confidence: %.1f/100
- Content Quality: %.1f/100
- Speaking Pace: %.1f words/minute
- Filler Words: %d total`,
		userName,
		report.OverallScore,
		bulletList(report.Strengths),
		bulletList(report.Improvements),
		report.ComponentScores.Communication,
		report.ComponentScores.Confidence,
		report.ComponentScores.ContentQuality,
		report.DetailedMetrics.AvgSpeakingPace,
		report.DetailedMetrics.FillerWordsCount,
	)

	content, err := c.complete(ctx, CompletionRequest{
		Operation:    "summarize",
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Temperature:  0.7,
		MaxTokens:    800,
	})

	if err != nil {
		return "", fmt.Errorf("failed to summarize: %w", err)
	}

	return content, nil
}

func DefaultQuestions(position string) []models.Question {
	return []models.Question{
		{
			Question:   "Tell me about yourself and your relevant experience.",
			Type:       "behavioral",
			FollowUp:   "What specific achievement are you most proud of?",
			Difficulty: "easy",
		},
		{
			Question:   fmt.Sprintf("Why are you interested in this %s position?", position),
			Type:       "communication",
			FollowUp:   "What about our company particularly attracts you?",
			Difficulty: "easy",
		},
		{
			Question:   "Describe a challenging project you worked on. What was your role and how did you overcome obstacles?",
			Type:       "behavioral",
			FollowUp:   "What would you do differently if you could do it again?",
			Difficulty: "medium",
		},
		{
			Question:   "What are your greatest strengths and how do they relate to this role?",
			Type:       "communication",
			FollowUp:   "Can you give me a specific example of using that strength?",
			Difficulty: "easy",
		},
		{
			Question:   "Where do you see yourself in 5 years?",
			Type:       "communication",
			FollowUp:   "How does this position fit into that plan?",
			Difficulty: "medium",
		},
	}
}

func defaultEvaluation() *models.Evaluation {
	return &models.Evaluation{
		RelevanceScore:    75,
		ClarityScore:      75,
		CompletenessScore: 75,
		SpecificityScore:  75,
		OverallScore:      75,
		Feedback:          "Your answer addresses the question adequately.",
	}
}

// stripJSONFences unwraps a markdown code block the model sometimes insists
// on returning despite the prompt.
func stripJSONFences(content string) string {
	if strings.Contains(content, "```json") {
		parts := strings.SplitN(content, "```json", 2)
		content = strings.SplitN(parts[1], "```", 2)[0]
	} else if strings.Contains(content, "```") {
		parts := strings.SplitN(content, "```", 3)
		if len(parts) >= 2 {
			content = parts[1]
		}
	}
	return strings.TrimSpace(content)
}

func bulletList(items []string) string {
	if len(items) == 0 {
		return "- none identified"
	}
	var b strings.Builder
	for i, item := range items {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("- " + item)
	}
	return b.String()
}
