package command_test

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"notulis.app/bot/common/llm"
	"notulis.app/bot/internal/gateway"
	"notulis.app/bot/internal/model"
	"notulis.app/bot/internal/store"
)

type sentText struct {
	chatID  string
	text    string
	replyTo string
}

// sendAttempt is any SendText call, delivered or not, with its
// idempotency key.
type sendAttempt struct {
	text string
	key  string
}

type sentPoll struct {
	chatID   string
	question string
	options  []string
}

type fakeSender struct {
	mu        sync.Mutex
	texts     []sentText
	polls     []sentPoll
	attempts  []sendAttempt
	textErr   error
	pollErr   error
	failAfter int // fail SendText once this many texts were sent; 0 disables
}

func (s *fakeSender) SendText(ctx context.Context, chatID, text, replyTo string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, _ := gateway.IdempotencyKey(ctx)
	s.attempts = append(s.attempts, sendAttempt{text: text, key: key})
	if s.textErr != nil {
		return s.textErr
	}
	if s.failAfter > 0 && len(s.texts) >= s.failAfter {
		return errors.New("gateway down")
	}
	s.texts = append(s.texts, sentText{chatID: chatID, text: text, replyTo: replyTo})
	return nil
}

func (s *fakeSender) SendPoll(_ context.Context, chatID, question string, options []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pollErr != nil {
		return s.pollErr
	}
	s.polls = append(s.polls, sentPoll{chatID: chatID, question: question, options: options})
	return nil
}

func (s *fakeSender) replies() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.texts))
	for i, t := range s.texts {
		out[i] = t.text
	}
	return out
}

func (s *fakeSender) lastAttempt() sendAttempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.attempts) == 0 {
		return sendAttempt{}
	}
	return s.attempts[len(s.attempts)-1]
}

func (s *fakeSender) last() string {
	r := s.replies()
	if len(r) == 0 {
		return ""
	}
	return r[len(r)-1]
}

// fakeMessages is an in-memory MessageStore with the same ordering
// contract as the Postgres one: lists are newest first.
type fakeMessages struct {
	msgs    []model.Message
	listErr error
}

var _ store.MessageStore = (*fakeMessages)(nil)

func (f *fakeMessages) Insert(_ context.Context, msg *model.Message) (bool, error) {
	f.msgs = append(f.msgs, *msg)
	return true, nil
}

func (f *fakeMessages) GetByID(_ context.Context, id int64) (*model.Message, error) {
	for _, m := range f.msgs {
		if m.ID == id {
			return &m, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeMessages) GetByExternalID(_ context.Context, conv, ext string) (*model.Message, error) {
	for _, m := range f.msgs {
		if m.ConversationID == conv && m.ExternalID == ext {
			return &m, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeMessages) ListBefore(_ context.Context, conv string, beforeID int64, limit int) ([]model.Message, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.newestFirst(limit, func(m model.Message) bool {
		return m.ConversationID == conv && m.ID < beforeID
	}), nil
}

func (f *fakeMessages) ListSince(_ context.Context, conv string, since, excludeID int64, limit int) ([]model.Message, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.newestFirst(limit, func(m model.Message) bool {
		return m.ConversationID == conv && m.SentAt >= since && m.ID != excludeID
	}), nil
}

func (f *fakeMessages) newestFirst(limit int, keep func(model.Message) bool) []model.Message {
	var out []model.Message
	for _, m := range f.msgs {
		if keep(m) {
			out = append(out, m)
		}
	}
	slices.SortFunc(out, func(a, b model.Message) int { return cmp.Compare(b.ID, a.ID) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// fakeArchive keeps one entry per source message and category, like the
// unique index on archive_entries.
type fakeArchive struct {
	entries []model.ArchiveEntry
	err     error
	getErr  error
}

var _ store.ArchiveStore = (*fakeArchive)(nil)

func (f *fakeArchive) Append(_ context.Context, e *model.ArchiveEntry) error {
	if f.err != nil {
		return f.err
	}
	if _, err := f.find(e.SourceMessageID, e.Category); e.SourceMessageID != 0 && err == nil {
		return nil
	}
	e.CreatedAt = time.Now()
	f.entries = append(f.entries, *e)
	return nil
}

func (f *fakeArchive) GetBySource(_ context.Context, source int64, category model.ArchiveCategory) (*model.ArchiveEntry, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.find(source, category)
}

func (f *fakeArchive) find(source int64, category model.ArchiveCategory) (*model.ArchiveEntry, error) {
	for _, e := range f.entries {
		if e.SourceMessageID == source && e.Category == category {
			return &e, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeArchive) ListByConversation(context.Context, string, int) ([]model.ArchiveEntry, error) {
	return f.entries, nil
}

type fakeRegistrar struct {
	ok    bool
	names map[string]string
}

func (f *fakeRegistrar) Register(_ context.Context, id, name string) bool {
	if !f.ok {
		return false
	}
	f.names[id] = name
	return true
}

// countingGenerator answers every prompt with respond and counts calls.
type countingGenerator struct {
	mu      sync.Mutex
	calls   int
	prompts []string
	respond func(prompt string) (string, error)
}

func (g *countingGenerator) Generate(_ context.Context, req llm.Request) (*llm.Response, error) {
	g.mu.Lock()
	g.calls++
	g.prompts = append(g.prompts, req.Prompt)
	respond := g.respond
	g.mu.Unlock()

	if respond == nil {
		return &llm.Response{Text: "ringkasan"}, nil
	}
	text, err := respond(req.Prompt)
	if err != nil {
		return nil, err
	}
	return &llm.Response{Text: text}, nil
}

func (g *countingGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func (g *countingGenerator) anyPromptContains(s string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, p := range g.prompts {
		if strings.Contains(p, s) {
			return true
		}
	}
	return false
}
