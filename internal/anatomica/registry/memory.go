package registry

import (
	"context"
	"sync"
)

// Memory is an in-process Backend. It serves two roles: the degraded mode
// when the SQLite store cannot be opened (the bot keeps running, losing only
// persistence across restarts) and the test double.
type Memory struct {
	mu    sync.Mutex
	users map[int64]User
	order []int64
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{users: make(map[int64]User)}
}

// Has implements Backend.
func (m *Memory) Has(_ context.Context, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.users[userID]
	return ok, nil
}

// Insert implements Backend. The map insert under the mutex makes it
// atomic: only the first insert for a UserID reports wasNew.
func (m *Memory) Insert(_ context.Context, u User) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.UserID]; ok {
		return false, nil
	}
	m.users[u.UserID] = u
	m.order = append(m.order, u.UserID)
	return true, nil
}

// All implements Backend. Users are returned in registration order.
func (m *Memory) All(_ context.Context) ([]User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	users := make([]User, 0, len(m.order))
	for _, id := range m.order {
		users = append(users, m.users[id])
	}
	return users, nil
}
