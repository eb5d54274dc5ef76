// Package chat answers tariff questions over retrieved context, with
// per-session conversation history.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/emsi-ai/tariff-engine/internal/cache"
)

// Message role markers, kept verbatim in the rendered history.
const (
	userMarker      = "👤"
	assistantMarker = "🤖"
)

// HistoryStore keeps per-session conversation history.
type HistoryStore interface {
	// Append records one question/answer exchange.
	Append(ctx context.Context, sessionID, question, answer string) error

	// History renders the whole session as newline-joined messages.
	History(ctx context.Context, sessionID string) (string, error)

	// LastMessages returns up to n most recent messages, oldest first.
	LastMessages(ctx context.Context, sessionID string, n int) ([]string, error)

	// Clear forgets the session.
	Clear(ctx context.Context, sessionID string) error
}

// MemoryHistory is an in-process history store.
type MemoryHistory struct {
	mu       sync.RWMutex
	sessions map[string][]string
}

// NewMemoryHistory creates an empty in-memory history store.
func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{sessions: make(map[string][]string)}
}

func (h *MemoryHistory) Append(ctx context.Context, sessionID, question, answer string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[sessionID] = append(h.sessions[sessionID],
		userMarker+" "+question,
		assistantMarker+" "+answer,
	)
	return nil
}

func (h *MemoryHistory) History(ctx context.Context, sessionID string) (string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return strings.Join(h.sessions[sessionID], "\n"), nil
}

func (h *MemoryHistory) LastMessages(ctx context.Context, sessionID string, n int) ([]string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	messages := h.sessions[sessionID]
	if n > 0 && len(messages) > n {
		messages = messages[len(messages)-n:]
	}
	out := make([]string, len(messages))
	copy(out, messages)
	return out, nil
}

func (h *MemoryHistory) Clear(ctx context.Context, sessionID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, sessionID)
	return nil
}

// CachedHistory stores session history in the shared cache, so sessions
// survive restarts and are visible across instances.
type CachedHistory struct {
	cache cache.Client
	ttl   time.Duration
}

// NewCachedHistory creates a cache-backed history store.
func NewCachedHistory(client cache.Client, ttl time.Duration) *CachedHistory {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CachedHistory{cache: client, ttl: ttl}
}

func (h *CachedHistory) load(ctx context.Context, sessionID string) ([]string, error) {
	raw, err := h.cache.Get(ctx, cache.SessionCacheKey(sessionID))
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var messages []string
	if err := json.Unmarshal(raw, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (h *CachedHistory) Append(ctx context.Context, sessionID, question, answer string) error {
	messages, err := h.load(ctx, sessionID)
	if err != nil {
		return err
	}
	messages = append(messages, userMarker+" "+question, assistantMarker+" "+answer)
	raw, err := json.Marshal(messages)
	if err != nil {
		return err
	}
	return h.cache.Set(ctx, cache.SessionCacheKey(sessionID), raw, h.ttl)
}

func (h *CachedHistory) History(ctx context.Context, sessionID string) (string, error) {
	messages, err := h.load(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return strings.Join(messages, "\n"), nil
}

func (h *CachedHistory) LastMessages(ctx context.Context, sessionID string, n int) ([]string, error) {
	messages, err := h.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if n > 0 && len(messages) > n {
		messages = messages[len(messages)-n:]
	}
	return messages, nil
}

func (h *CachedHistory) Clear(ctx context.Context, sessionID string) error {
	return h.cache.Delete(ctx, cache.SessionCacheKey(sessionID))
}

var (
	_ HistoryStore = (*MemoryHistory)(nil)
	_ HistoryStore = (*CachedHistory)(nil)
)
