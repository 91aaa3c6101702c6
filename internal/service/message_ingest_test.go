package service_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"notulis.app/bot/internal/model"
	"notulis.app/bot/internal/queue"
	"notulis.app/bot/internal/service"
	"notulis.app/bot/internal/store"
)

type mockMessageStore struct {
	store.MessageStore
	inserted  []model.Message
	seen      map[string]bool
	insertErr error
}

func (m *mockMessageStore) Insert(_ context.Context, msg *model.Message) (bool, error) {
	if m.insertErr != nil {
		return false, m.insertErr
	}
	key := msg.ConversationID + "/" + msg.ExternalID
	if m.seen[key] {
		return false, nil
	}
	m.seen[key] = true
	m.inserted = append(m.inserted, *msg)
	return true, nil
}

func (m *mockMessageStore) GetByExternalID(_ context.Context, conv, ext string) (*model.Message, error) {
	for _, msg := range m.inserted {
		if msg.ConversationID == conv && msg.ExternalID == ext {
			return &msg, nil
		}
	}
	return nil, store.ErrNotFound
}

type mockProducer struct {
	tasks      []queue.Task
	enqueueErr error
}

func (m *mockProducer) Enqueue(_ context.Context, task queue.Task) error {
	if m.enqueueErr != nil {
		return m.enqueueErr
	}
	m.tasks = append(m.tasks, task)
	return nil
}

func (m *mockProducer) Close() error { return nil }

var _ = Describe("MessageIngestService", func() {
	var (
		ctx      context.Context
		messages *mockMessageStore
		producer *mockProducer
		svc      service.MessageIngestService
	)

	BeforeEach(func() {
		ctx = context.Background()
		messages = &mockMessageStore{seen: map[string]bool{}}
		producer = &mockProducer{}
		svc = service.NewMessageIngestService(messages, producer, "62800@c.us", nil)
	})

	params := func(body string) service.MessageIngestParams {
		return service.MessageIngestParams{
			ExternalID:     "ext-1",
			ConversationID: "group@g.us",
			SenderID:       "62811@c.us",
			Body:           body,
			SentAt:         1700000000,
			IsGroup:        true,
		}
	}

	It("stores a plain message without enqueuing", func() {
		res, err := svc.Ingest(ctx, params("halo semua"))
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Enqueued).To(BeFalse())
		Expect(messages.inserted).To(HaveLen(1))
		Expect(messages.inserted[0].ID).NotTo(BeZero())
		Expect(producer.tasks).To(BeEmpty())
	})

	It("enqueues a group command with its stored id", func() {
		trace := "trace-1"
		p := params("!rangkum 20")
		p.TraceID = &trace

		res, err := svc.Ingest(ctx, p)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Enqueued).To(BeTrue())
		Expect(res.Command).To(Equal("rangkum"))
		Expect(producer.tasks).To(ConsistOf(queue.Task{
			ChatMessageID:  res.Message.ID,
			ConversationID: "group@g.us",
			Command:        "rangkum",
			TraceID:        &trace,
			Attempt:        1,
		}))
	})

	It("dedupes a redelivered message", func() {
		_, err := svc.Ingest(ctx, params("!rangkum 20"))
		Expect(err).NotTo(HaveOccurred())

		res, err := svc.Ingest(ctx, params("!rangkum 20"))
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Duplicated).To(BeTrue())
		Expect(res.Enqueued).To(BeFalse())
		Expect(producer.tasks).To(HaveLen(1))
	})

	DescribeTable("stores but never dispatches",
		func(mutate func(p *service.MessageIngestParams)) {
			p := params("!rangkum 20")
			mutate(&p)

			res, err := svc.Ingest(ctx, p)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Enqueued).To(BeFalse())
			Expect(messages.inserted).To(HaveLen(1))
			Expect(producer.tasks).To(BeEmpty())
		},
		Entry("direct messages", func(p *service.MessageIngestParams) { p.IsGroup = false }),
		Entry("the bot's own messages", func(p *service.MessageIngestParams) { p.FromMe = true }),
		Entry("messages from the bot's id", func(p *service.MessageIngestParams) { p.SenderID = "62800@c.us" }),
	)

	It("drops blank sender names and quotes", func() {
		blank := "  "
		p := params("halo")
		p.SenderName = &blank
		p.QuotedID = &blank

		_, err := svc.Ingest(ctx, p)
		Expect(err).NotTo(HaveOccurred())
		Expect(messages.inserted[0].SenderName).To(BeNil())
		Expect(messages.inserted[0].QuotedID).To(BeNil())
	})

	It("rejects incomplete messages", func() {
		p := params("halo")
		p.SenderID = ""
		_, err := svc.Ingest(ctx, p)
		Expect(err).To(MatchError(service.ErrInvalidMessage))
	})

	It("surfaces store and queue failures", func() {
		messages.insertErr = errors.New("db down")
		_, err := svc.Ingest(ctx, params("halo"))
		Expect(err).To(MatchError(ContainSubstring("storing message")))

		messages.insertErr = nil
		producer.enqueueErr = errors.New("redis down")
		_, err = svc.Ingest(ctx, params("!tugas 5"))
		Expect(err).To(MatchError(ContainSubstring("enqueueing command")))
	})
})
