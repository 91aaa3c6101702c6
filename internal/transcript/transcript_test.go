package transcript_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"notulis.app/bot/internal/model"
	"notulis.app/bot/internal/transcript"
)

type mapRegistry map[string]string

func (m mapRegistry) Lookup(id string) (string, bool) {
	name, ok := m[id]
	return name, ok
}

type mockContacts struct {
	mu        sync.Mutex
	names     map[string]string
	err       error
	callCount atomic.Int32
	calls     []string
}

func (m *mockContacts) ContactName(_ context.Context, id string) (string, error) {
	m.callCount.Add(1)
	m.mu.Lock()
	m.calls = append(m.calls, id)
	m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	return m.names[id], nil
}

func msg(sender, body string) model.Message {
	return model.Message{SenderID: sender, Body: body}
}

var _ = Describe("ChainResolver", func() {
	var (
		ctx      context.Context
		contacts *mockContacts
		resolver *transcript.ChainResolver
	)

	BeforeEach(func() {
		ctx = context.Background()
		contacts = &mockContacts{names: map[string]string{"c@c.us": "Citra (WA)"}}
		resolver = transcript.NewChainResolver(
			mapRegistry{"a@c.us": "Andi"},
			contacts,
			time.Minute,
		)
	})

	It("prefers the registered name over the transport hint", func() {
		m := msg("a@c.us", "halo")
		m.SenderName = strPtr("andi_wa")
		Expect(resolver.Resolve(ctx, m)).To(Equal("Andi"))
		Expect(contacts.callCount.Load()).To(BeZero())
	})

	It("uses the transport hint when unregistered", func() {
		m := msg("b@c.us", "halo")
		m.SenderName = strPtr("  Budi ")
		Expect(resolver.Resolve(ctx, m)).To(Equal("Budi"))
		Expect(contacts.callCount.Load()).To(BeZero())
	})

	It("asks the transport when there is no hint", func() {
		Expect(resolver.Resolve(ctx, msg("c@c.us", "halo"))).To(Equal("Citra (WA)"))
	})

	It("caches contact names", func() {
		resolver.Resolve(ctx, msg("c@c.us", "1"))
		resolver.Resolve(ctx, msg("c@c.us", "2"))
		Expect(contacts.callCount.Load()).To(Equal(int32(1)))
	})

	It("falls back to the raw id for an unregistered, profile-less sender", func() {
		Expect(resolver.Resolve(ctx, msg("628123@c.us", "halo"))).To(Equal("628123@c.us"))
	})

	It("falls back to the raw id when the contact lookup fails", func() {
		contacts.err = errors.New("gateway down")
		Expect(resolver.Resolve(ctx, msg("c@c.us", "halo"))).To(Equal("c@c.us"))
	})

	It("never returns an empty name", func() {
		r := transcript.NewChainResolver(nil, nil, time.Minute)
		Expect(r.Resolve(ctx, msg("", "halo"))).NotTo(BeEmpty())
	})
})

var _ = Describe("Builder", func() {
	var (
		ctx     context.Context
		builder *transcript.Builder
	)

	BeforeEach(func() {
		ctx = context.Background()
		builder = transcript.NewBuilder(
			transcript.NewChainResolver(mapRegistry{"a": "Andi", "b": "Budi"}, nil, time.Minute),
			4,
		)
	})

	It("signals an empty batch explicitly", func() {
		_, err := builder.Build(ctx, nil)
		Expect(err).To(MatchError(transcript.ErrEmptyTranscript))
	})

	It("produces one non-empty line per message in input order", func() {
		var msgs []model.Message
		for i := range 57 {
			sender := []string{"a", "b", "zz@c.us"}[i%3]
			msgs = append(msgs, msg(sender, fmt.Sprintf("pesan %d", i)))
		}

		text, err := builder.Build(ctx, msgs)
		Expect(err).NotTo(HaveOccurred())

		lines := strings.Split(text, "\n")
		Expect(lines).To(HaveLen(57))
		for i, line := range lines {
			Expect(line).NotTo(BeEmpty())
			Expect(line).To(HaveSuffix(fmt.Sprintf(": pesan %d", i)))
		}
		Expect(lines[0]).To(Equal("Andi: pesan 0"))
		Expect(lines[1]).To(Equal("Budi: pesan 1"))
		Expect(lines[2]).To(Equal("zz@c.us: pesan 2"))
	})

	It("folds multi-line bodies onto one line", func() {
		lines, err := builder.Lines(ctx, []model.Message{msg("a", "baris satu\nbaris  dua\r\n")})
		Expect(err).NotTo(HaveOccurred())
		Expect(lines).To(Equal([]string{"Andi: baris satu baris dua"}))
	})

	It("stops when the context is cancelled", func() {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := builder.Build(cancelled, []model.Message{msg("a", "x")})
		Expect(err).To(MatchError(context.Canceled))
	})
})

func strPtr(s string) *string { return &s }
