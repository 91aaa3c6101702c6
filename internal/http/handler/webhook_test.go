package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"notulis.app/bot/internal/http/handler"
	"notulis.app/bot/internal/model"
	"notulis.app/bot/internal/service"
)

var _ = Describe("WebhookHandler", func() {
	var (
		router   *gin.Engine
		svc      *mockIngestService
		recorder *resultRecorder
	)

	post := func(body string, headers map[string]string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	groupMessage := func(body string) string {
		payload, _ := json.Marshal(map[string]any{
			"event":   "message",
			"session": "default",
			"payload": map[string]any{
				"id":          "false_120363@g.us_ABC",
				"from":        "120363@g.us",
				"participant": "62811@c.us",
				"body":        body,
				"timestamp":   1700000000,
				"notifyName":  "Budi",
				"quotedMsgId": "false_120363@g.us_XYZ",
			},
		})
		return string(payload)
	}

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		router = gin.New()
		svc = &mockIngestService{
			ingestFn: func(_ context.Context, p service.MessageIngestParams) (*service.MessageIngestResult, error) {
				return &service.MessageIngestResult{
					Message:  &model.Message{ID: 42, ConversationID: p.ConversationID},
					Command:  "rangkum",
					Enqueued: true,
				}, nil
			},
		}
		recorder = &resultRecorder{}
		h := handler.NewWebhookHandler(svc, recorder, "X-Trace-ID")
		router.POST("/webhook", h.HandleEvent)
	})

	It("maps a group message onto ingest params and returns 202", func() {
		w := post(groupMessage("!rangkum 20"), map[string]string{"X-Trace-ID": "trace-1"})

		Expect(w.Code).To(Equal(http.StatusAccepted))
		Expect(svc.calls).To(HaveLen(1))
		p := svc.calls[0]
		Expect(p.ExternalID).To(Equal("false_120363@g.us_ABC"))
		Expect(p.ConversationID).To(Equal("120363@g.us"))
		Expect(p.SenderID).To(Equal("62811@c.us"))
		Expect(*p.SenderName).To(Equal("Budi"))
		Expect(p.IsGroup).To(BeTrue())
		Expect(p.SentAt).To(Equal(int64(1700000000)))
		Expect(*p.QuotedID).To(Equal("false_120363@g.us_XYZ"))
		Expect(*p.TraceID).To(Equal("trace-1"))

		var resp map[string]any
		Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
		Expect(resp["status"]).To(Equal("enqueued"))
		Expect(resp["command"]).To(Equal("rangkum"))
		Expect(resp["message_id"]).To(Equal("42"))
		Expect(recorder.results).To(Equal([]string{"enqueued"}))
	})

	It("uses the chat id as sender in direct chats", func() {
		body := `{"event":"message","payload":{"id":"m1","from":"62811@c.us","body":"halo"}}`
		svc.ingestFn = func(_ context.Context, p service.MessageIngestParams) (*service.MessageIngestResult, error) {
			return &service.MessageIngestResult{Message: &model.Message{ID: 7}}, nil
		}

		w := post(body, nil)

		Expect(w.Code).To(Equal(http.StatusAccepted))
		Expect(svc.calls[0].SenderID).To(Equal("62811@c.us"))
		Expect(svc.calls[0].IsGroup).To(BeFalse())
		Expect(svc.calls[0].TraceID).To(BeNil())
		Expect(recorder.results).To(Equal([]string{"stored"}))
	})

	It("reports duplicates", func() {
		svc.ingestFn = func(_ context.Context, _ service.MessageIngestParams) (*service.MessageIngestResult, error) {
			return &service.MessageIngestResult{Message: &model.Message{ID: 9}, Duplicated: true}, nil
		}

		w := post(groupMessage("!rangkum"), nil)

		Expect(w.Code).To(Equal(http.StatusAccepted))
		Expect(w.Body.String()).To(ContainSubstring(`"duplicated":true`))
		Expect(recorder.results).To(Equal([]string{"duplicate"}))
	})

	It("ignores non-message events without calling the service", func() {
		w := post(`{"event":"session.status","payload":null}`, nil)

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(svc.calls).To(BeEmpty())
		Expect(recorder.results).To(Equal([]string{"ignored"}))
	})

	It("returns 400 on malformed json", func() {
		w := post(`{`, nil)

		Expect(w.Code).To(Equal(http.StatusBadRequest))
		Expect(svc.calls).To(BeEmpty())
		Expect(recorder.results).To(Equal([]string{"invalid"}))
	})

	It("returns 400 when the event name is missing", func() {
		w := post(`{"payload":{"id":"m1","from":"x@g.us"}}`, nil)

		Expect(w.Code).To(Equal(http.StatusBadRequest))
	})

	It("returns 400 when the service rejects the message", func() {
		svc.ingestFn = func(_ context.Context, _ service.MessageIngestParams) (*service.MessageIngestResult, error) {
			return nil, fmt.Errorf("%w: external_id required", service.ErrInvalidMessage)
		}

		w := post(`{"event":"message","payload":{"from":"x@g.us"}}`, nil)

		Expect(w.Code).To(Equal(http.StatusBadRequest))
		Expect(recorder.results).To(Equal([]string{"invalid"}))
	})

	It("returns 500 when ingest fails", func() {
		svc.ingestFn = func(_ context.Context, _ service.MessageIngestParams) (*service.MessageIngestResult, error) {
			return nil, errors.New("db down")
		}

		w := post(groupMessage("!tugas"), nil)

		Expect(w.Code).To(Equal(http.StatusInternalServerError))
		Expect(w.Body.String()).NotTo(ContainSubstring("db down"))
		Expect(recorder.results).To(Equal([]string{"error"}))
	})
})
