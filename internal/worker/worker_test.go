package worker_test

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"

	"notulis.app/bot/internal/model"
	"notulis.app/bot/internal/queue"
	"notulis.app/bot/internal/worker"
)

var _ = Describe("Worker", func() {
	var (
		ctx        context.Context
		consumer   *mockConsumer
		loader     mapLoader
		dispatcher *mockDispatcher
		recorder   *outcomeRecorder
		w          *worker.Worker
	)

	BeforeEach(func() {
		ctx = context.Background()
		consumer = &mockConsumer{}
		loader = mapLoader{
			1: {ID: 1, ConversationID: "a@g.us", Body: "!rangkum 10"},
			2: {ID: 2, ConversationID: "b@g.us", Body: "!tugas 10"},
		}
		dispatcher = &mockDispatcher{}
		recorder = &outcomeRecorder{}
		w = worker.New(consumer, loader, dispatcher, recorder, worker.Config{MaxAttempts: 3, Concurrency: 2})
	})

	task := func(streamID string, chatID int64, attempt int) queue.Message {
		return queue.Message{ID: streamID, ChatMessageID: chatID, ConversationID: "a@g.us", Attempt: attempt}
	}

	It("dispatches the stored message and acks", func() {
		Expect(w.Handle(ctx, task("1-0", 1, 1))).To(Succeed())

		Expect(dispatcher.dispatched).To(HaveLen(1))
		Expect(dispatcher.dispatched[0].Body).To(Equal("!rangkum 10"))
		Expect(consumer.acked).To(Equal([]string{"1-0"}))
		Expect(recorder.outcomes).To(Equal([]string{worker.OutcomeDone}))
	})

	It("acks and skips a task whose message is gone", func() {
		Expect(w.Handle(ctx, task("1-0", 99, 1))).To(Succeed())

		Expect(dispatcher.count()).To(BeZero())
		Expect(consumer.acked).To(Equal([]string{"1-0"}))
		Expect(recorder.outcomes).To(Equal([]string{worker.OutcomeSkipped}))
	})

	It("requeues a failed dispatch below the attempt limit", func() {
		dispatcher.dispatchFn = func(model.Message) error { return errors.New("gateway down") }

		Expect(w.Handle(ctx, task("1-0", 1, 1))).To(Succeed())
		Expect(consumer.requeued).To(HaveLen(1))
		Expect(consumer.acked).To(BeEmpty())
		Expect(consumer.dlq).To(BeEmpty())
	})

	It("sends to the DLQ at the attempt limit", func() {
		dispatcher.dispatchFn = func(model.Message) error { return errors.New("gateway down") }

		Expect(w.Handle(ctx, task("1-0", 1, 3))).To(Succeed())
		Expect(consumer.dlq).To(HaveLen(1))
		Expect(consumer.requeued).To(BeEmpty())
		Expect(recorder.outcomes).To(Equal([]string{worker.OutcomeDLQ}))
	})

	It("recovers from a panicking dispatcher", func() {
		dispatcher.dispatchFn = func(model.Message) error { panic("boom") }

		Expect(w.Handle(ctx, task("1-0", 1, 1))).To(Succeed())
		Expect(consumer.requeued).To(HaveLen(1))
	})

	It("runs a batch concurrently up to the limit", func() {
		var running, peak atomic.Int32
		release := make(chan struct{})
		dispatcher.dispatchFn = func(model.Message) error {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			<-release
			running.Add(-1)
			return nil
		}
		consumer.batches = [][]queue.Message{{task("1-0", 1, 1), task("2-0", 2, 1), task("3-0", 1, 1)}}

		runCtx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func() {
			defer GinkgoRecover()
			done <- w.Run(runCtx)
		}()

		Eventually(running.Load).Should(Equal(int32(2)))
		Consistently(running.Load, 50*time.Millisecond).Should(Equal(int32(2)))
		close(release)

		Eventually(dispatcher.count).Should(Equal(3))
		cancel()
		Eventually(done).Should(Receive(MatchError(context.Canceled)))
		Expect(peak.Load()).To(Equal(int32(2)))
	})
})

var _ = Describe("Reclaimer", func() {
	var (
		ctx      context.Context
		client   *redis.Client
		producer queue.Producer
		crashed  *queue.RedisConsumer
		rescuer  *queue.RedisConsumer
	)

	BeforeEach(func() {
		ctx = context.Background()
		mr := miniredis.RunT(GinkgoT())
		client = redis.NewClient(&redis.Options{Addr: mr.Addr()})
		DeferCleanup(client.Close)
		producer = queue.NewRedisProducer(client, "chat_commands", nil)

		cfg := queue.ConsumerConfig{
			Stream:    "chat_commands",
			Group:     "notulis_workers",
			Consumer:  "worker-crashed",
			DLQStream: "chat_commands_dlq",
			BatchSize: 10,
			Block:     10 * time.Millisecond,
		}
		var err error
		crashed, err = queue.NewRedisConsumer(ctx, client, cfg)
		Expect(err).NotTo(HaveOccurred())
		cfg.Consumer = "worker-rescuer"
		rescuer, err = queue.NewRedisConsumer(ctx, client, cfg)
		Expect(err).NotTo(HaveOccurred())

		Expect(producer.Enqueue(ctx, queue.Task{ChatMessageID: 1, ConversationID: "a@g.us", Command: "rangkum"})).To(Succeed())
		msgs, err := crashed.Read(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(msgs).To(HaveLen(1))
	})

	It("claims and processes a stale entry", func() {
		var processed []queue.Message
		r := worker.NewReclaimer(rescuer, worker.ReclaimerConfig{MaxDeliveries: 5}, func(ctx context.Context, msg queue.Message) error {
			processed = append(processed, msg)
			return rescuer.Ack(ctx, msg)
		})

		Expect(r.ReclaimOnce(ctx)).To(Succeed())
		Expect(processed).To(HaveLen(1))
		Expect(processed[0].ChatMessageID).To(Equal(int64(1)))

		pending, err := rescuer.Pending(ctx, 0, 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(pending).To(BeEmpty())
	})

	It("moves an entry delivered too often to the DLQ", func() {
		called := false
		r := worker.NewReclaimer(rescuer, worker.ReclaimerConfig{MaxDeliveries: 1}, func(context.Context, queue.Message) error {
			called = true
			return nil
		})

		Expect(r.ReclaimOnce(ctx)).To(Succeed())
		Expect(called).To(BeFalse())

		dlq, err := client.XRange(ctx, "chat_commands_dlq", "-", "+").Result()
		Expect(err).NotTo(HaveOccurred())
		Expect(dlq).To(HaveLen(1))
	})
})
