package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/raj-deshmukh6403/AI-Communication-Interview-Helper/internal/storage/models"
	"github.com/raj-deshmukh6403/AI-Communication-Interview-Helper/pkg/logger"
)

type Client struct {
	client *redis.Client
}

func NewClient(host string, port int, password string, db int) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return &Client{client: client}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// SetQuestions caches a generated question set keyed by job-context hash so
// identical job descriptions don't repeat an LLM round trip.
func (c *Client) SetQuestions(ctx context.Context, jobHash string, questions []models.Question, ttl time.Duration) error {
	data, err := json.Marshal(questions)
	if err != nil {
		return fmt.Errorf("failed to marshal questions: %w", err)
	}

	err = c.client.Set(ctx, fmt.Sprintf("questions:%s", jobHash), data, ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set question cache: %w", err)
	}

	logger.Debug("Questions cached", zap.String("job_hash", jobHash), zap.Duration("ttl", ttl))
	return nil
}

func (c *Client) GetQuestions(ctx context.Context, jobHash string) ([]models.Question, bool, error) {
	data, err := c.client.Get(ctx, fmt.Sprintf("questions:%s", jobHash)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get question cache: %w", err)
	}

	var questions []models.Question
	err = json.Unmarshal(data, &questions)
	if err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal questions: %w", err)
	}

	logger.Debug("Question cache hit", zap.String("job_hash", jobHash))
	return questions, true, nil
}
