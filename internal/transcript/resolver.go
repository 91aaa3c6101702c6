package transcript

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"notulis.app/bot/internal/model"
)

// Registry is the self-registered name lookup (see internal/registry).
type Registry interface {
	Lookup(senderID string) (string, bool)
}

// ContactLookup fetches a sender's profile name from the transport.
// It may block on the network and may fail.
type ContactLookup interface {
	ContactName(ctx context.Context, senderID string) (string, error)
}

// Resolver turns a message author into a display name. Implementations
// must always return a non-empty string.
type Resolver interface {
	Resolve(ctx context.Context, msg model.Message) string
}

type cachedName struct {
	name    string
	expires time.Time
}

// ChainResolver tries, in order: the registry, the transport hint carried
// on the message, a transport contact lookup, and finally the raw sender id.
type ChainResolver struct {
	registry Registry
	contacts ContactLookup
	ttl      time.Duration

	group singleflight.Group
	mu    sync.Mutex
	cache map[string]cachedName
}

// NewChainResolver builds a resolver. contacts may be nil, in which case
// the chain skips the network tier.
func NewChainResolver(registry Registry, contacts ContactLookup, ttl time.Duration) *ChainResolver {
	return &ChainResolver{
		registry: registry,
		contacts: contacts,
		ttl:      ttl,
		cache:    make(map[string]cachedName),
	}
}

func (r *ChainResolver) Resolve(ctx context.Context, msg model.Message) string {
	if r.registry != nil {
		if name, ok := r.registry.Lookup(msg.SenderID); ok && strings.TrimSpace(name) != "" {
			return strings.TrimSpace(name)
		}
	}

	if msg.SenderName != nil {
		if hint := strings.TrimSpace(*msg.SenderName); hint != "" {
			return hint
		}
	}

	if name := r.contactName(ctx, msg.SenderID); name != "" {
		return name
	}

	return rawID(msg.SenderID)
}

func (r *ChainResolver) contactName(ctx context.Context, senderID string) string {
	if r.contacts == nil || senderID == "" {
		return ""
	}

	r.mu.Lock()
	if c, ok := r.cache[senderID]; ok && time.Now().Before(c.expires) {
		r.mu.Unlock()
		return c.name
	}
	r.mu.Unlock()

	v, _, _ := r.group.Do(senderID, func() (any, error) {
		name, err := r.contacts.ContactName(ctx, senderID)
		if err != nil {
			slog.WarnContext(ctx, "contact lookup failed, falling back to raw id",
				"sender_id", senderID,
				"error", err)
			return "", nil
		}
		name = strings.TrimSpace(name)

		r.mu.Lock()
		r.cache[senderID] = cachedName{name: name, expires: time.Now().Add(r.ttl)}
		r.mu.Unlock()
		return name, nil
	})
	return v.(string)
}

// rawID is the last tier. Transport ids look like "62812xxxx@c.us"; the
// whole id is kept so distinct senders never collapse into one name.
func rawID(senderID string) string {
	if s := strings.TrimSpace(senderID); s != "" {
		return s
	}
	return "unknown"
}
