package middleware_test

import (
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"notulis.app/bot/internal/http/middleware"
)

var _ = Describe("Middleware", func() {
	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
	})

	Describe("RequireWebhookSecret", func() {
		serve := func(secret, header string) int {
			router := gin.New()
			router.Use(middleware.RequireWebhookSecret(secret))
			router.POST("/hook", func(c *gin.Context) { c.Status(http.StatusNoContent) })

			req := httptest.NewRequest(http.MethodPost, "/hook", nil)
			if header != "" {
				req.Header.Set(middleware.WebhookSecretHeader, header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			return w.Code
		}

		It("passes through when no secret is configured", func() {
			Expect(serve("", "")).To(Equal(http.StatusNoContent))
		})

		It("accepts the matching secret", func() {
			Expect(serve("s3cret", "s3cret")).To(Equal(http.StatusNoContent))
		})

		It("rejects a missing header", func() {
			Expect(serve("s3cret", "")).To(Equal(http.StatusUnauthorized))
		})

		It("rejects a wrong secret", func() {
			Expect(serve("s3cret", "guess")).To(Equal(http.StatusUnauthorized))
		})
	})

	Describe("Recovery", func() {
		It("turns a panic into a 500", func() {
			router := gin.New()
			router.Use(middleware.Recovery(), middleware.Logger())
			router.GET("/boom", func(c *gin.Context) { panic("boom") })

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

			Expect(w.Code).To(Equal(http.StatusInternalServerError))
			Expect(w.Body.String()).To(ContainSubstring("internal server error"))
		})
	})
})
