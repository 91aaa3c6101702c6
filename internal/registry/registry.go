// Package registry caches self-registered display names in memory.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"notulis.app/bot/internal/model"
	"notulis.app/bot/internal/store"
)

const MaxNameLength = 64

// Registry is loaded once at start and updated only after a registration
// has been persisted. It never re-reads the store.
type Registry struct {
	users store.UserStore

	mu    sync.RWMutex
	names map[string]string
}

func New(users store.UserStore) *Registry {
	return &Registry{users: users, names: make(map[string]string)}
}

func (r *Registry) Load(ctx context.Context) error {
	users, err := r.users.List(ctx)
	if err != nil {
		return fmt.Errorf("loading registry: %w", err)
	}

	names := make(map[string]string, len(users))
	for _, u := range users {
		names[u.SenderID] = u.DisplayName
	}

	r.mu.Lock()
	r.names = names
	r.mu.Unlock()

	slog.InfoContext(ctx, "name registry loaded", "count", len(names))
	return nil
}

func (r *Registry) Lookup(senderID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.names[senderID]
	return name, ok
}

// Register persists name for senderID and reports success. The in-memory
// cache changes only when the store write succeeded.
func (r *Registry) Register(ctx context.Context, senderID, name string) bool {
	name = NormalizeName(name)
	if senderID == "" || name == "" {
		return false
	}

	if err := r.users.Upsert(ctx, &model.ChatUser{SenderID: senderID, DisplayName: name}); err != nil {
		slog.ErrorContext(ctx, "failed to persist registration",
			"sender_id", senderID,
			"error", err)
		return false
	}

	r.mu.Lock()
	r.names[senderID] = name
	r.mu.Unlock()
	return true
}

// NormalizeName collapses whitespace and caps the length in runes.
func NormalizeName(name string) string {
	name = strings.Join(strings.Fields(name), " ")
	if runes := []rune(name); len(runes) > MaxNameLength {
		name = strings.TrimSpace(string(runes[:MaxNameLength]))
	}
	return name
}
