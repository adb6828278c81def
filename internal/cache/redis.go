package cache

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// ProjectComment is one cached comment feed entry.
type ProjectComment struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId"`
	UserID    int64     `json:"userId"`
	Nickname  string    `json:"nickname,omitempty"`
	Content   string    `json:"content"`
	X         *float64  `json:"x,omitempty"`
	Y         *float64  `json:"y,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// RedisClient wraps Redis for the per-project comment feed. Postgres holds
// the durable copy; this list only makes the recent feed cheap to read.
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient connects and pings Redis.
func NewRedisClient(addr, password string, db int) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	log.Printf("[Redis] Connected to %s", addr)
	return &RedisClient{client: client}, nil
}

func commentKey(projectID string) string {
	return "project:" + projectID + ":comments"
}

// AddComment appends a comment to the project's feed.
func (r *RedisClient) AddComment(ctx context.Context, projectID string, c *ProjectComment) error {
	key := commentKey(projectID)

	data, err := json.Marshal(c)
	if err != nil {
		return err
	}

	if err := r.client.RPush(ctx, key, data).Err(); err != nil {
		log.Printf("[Redis] Failed to add comment: %v", err)
		return err
	}

	// Refresh the 24h TTL on every write
	r.client.Expire(ctx, key, 24*time.Hour)

	return nil
}

// GetRecentComments returns the last N feed entries for a project.
func (r *RedisClient) GetRecentComments(ctx context.Context, projectID string, count int64) ([]ProjectComment, error) {
	key := commentKey(projectID)

	results, err := r.client.LRange(ctx, key, -count, -1).Result()
	if err != nil {
		return nil, err
	}

	comments := make([]ProjectComment, 0, len(results))
	for _, data := range results {
		var c ProjectComment
		if err := json.Unmarshal([]byte(data), &c); err != nil {
			continue
		}
		comments = append(comments, c)
	}

	return comments, nil
}

// CommentCount returns the feed length for a project.
func (r *RedisClient) CommentCount(ctx context.Context, projectID string) (int64, error) {
	return r.client.LLen(ctx, commentKey(projectID)).Result()
}

// Health checks the connection.
func (r *RedisClient) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (r *RedisClient) Close() error {
	return r.client.Close()
}

// Raw exposes the underlying client for sibling packages sharing the pool.
func (r *RedisClient) Raw() *redis.Client {
	return r.client
}
