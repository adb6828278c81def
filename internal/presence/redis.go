package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Status presence states
type Status string

const (
	StatusOnline  Status = "ONLINE"
	StatusOffline Status = "OFFLINE"
)

// Data is the record stored per user in Redis.
type Data struct {
	UserID        int64  `json:"user_id"`
	Status        Status `json:"status"`
	ProjectID     string `json:"project_id,omitempty"` // current room, for roster views
	LastHeartbeat int64  `json:"last_heartbeat"`
	ServerID      string `json:"server_id"` // for future multi-server fan-out
}

// presenceTTL is refreshed by the connection heartbeat; a crashed client
// simply expires.
const presenceTTL = 60 * time.Second

// Manager tracks which users currently hold a live connection.
type Manager struct {
	client *redis.Client
}

// NewManager creates a Manager on an existing Redis client.
func NewManager(client *redis.Client) *Manager {
	return &Manager{client: client}
}

func (m *Manager) userKey(userID int64) string {
	return fmt.Sprintf("presence:user:%d", userID)
}

// SetOnline marks a user online (connect, room switch).
func (m *Manager) SetOnline(ctx context.Context, userID int64, projectID, serverID string) error {
	data := Data{
		UserID:        userID,
		Status:        StatusOnline,
		ProjectID:     projectID,
		LastHeartbeat: time.Now().Unix(),
		ServerID:      serverID,
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	return m.client.Set(ctx, m.userKey(userID), jsonData, presenceTTL).Err()
}

// Heartbeat extends the TTL without rewriting the record.
func (m *Manager) Heartbeat(ctx context.Context, userID int64) error {
	ok, err := m.client.Expire(ctx, m.userKey(userID), presenceTTL).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("user %d not found (offline)", userID)
	}
	return nil
}

// SetOffline removes the record (disconnect).
func (m *Manager) SetOffline(ctx context.Context, userID int64) error {
	return m.client.Del(ctx, m.userKey(userID)).Err()
}

// Get returns one user's presence, nil when offline.
func (m *Manager) Get(ctx context.Context, userID int64) (*Data, error) {
	val, err := m.client.Get(ctx, m.userKey(userID)).Result()
	if err == redis.Nil {
		return nil, nil // offline
	}
	if err != nil {
		return nil, err
	}

	var data Data
	if err := json.Unmarshal([]byte(val), &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetMulti returns presence for several users in one MGET.
func (m *Manager) GetMulti(ctx context.Context, userIDs []int64) (map[int64]*Data, error) {
	if len(userIDs) == 0 {
		return map[int64]*Data{}, nil
	}

	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = m.userKey(id)
	}

	results, err := m.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	presenceMap := make(map[int64]*Data)
	for i, result := range results {
		if result == nil {
			continue // offline
		}

		strVal, ok := result.(string)
		if !ok {
			continue
		}

		var data Data
		if err := json.Unmarshal([]byte(strVal), &data); err == nil {
			presenceMap[userIDs[i]] = &data
		}
	}

	return presenceMap, nil
}
