package handler_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"askhub.app/askhub/internal/domain"
	"askhub.app/askhub/internal/http/handler"
	"askhub.app/askhub/internal/pipeline"
	"askhub.app/askhub/internal/platform"
	chatadapter "askhub.app/askhub/internal/platform/googlechat"
)

const chatMessage = `{
	"type": "MESSAGE",
	"message": {
		"text": "@askhub how do I request a laptop?",
		"argumentText": " how do I request a laptop?",
		"thread": {"name": "spaces/S1/threads/T1"},
		"sender": {"name": "users/123"}
	},
	"space": {"name": "spaces/S1"}
}`

var _ = Describe("GoogleChatHandler", func() {
	var (
		router *gin.Engine
		facade *fakeFacade
	)

	setup := func() {
		gin.SetMode(gin.TestMode)
		router = gin.New()

		adapter := chatadapter.New(chatadapter.Config{BotMention: "@askhub"})
		registry := platform.NewRegistry(adapter)
		pipe := pipeline.New(pipeline.Config{QueueSize: 4, Workers: 1, QueryTimeout: time.Second}, facade, registry)

		h := handler.NewGoogleChatHandler(adapter, pipe)
		router.POST("/webhooks/googlechat/events", h.HandleEvent)
	}

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/googlechat/events", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	It("answers synchronously with formatted citations", func() {
		facade = &fakeFacade{answer: domain.Answer{
			Text: "File a ticket in the IT portal.",
			Sources: []domain.Source{
				{Title: "Hardware requests", URL: "https://wiki/hardware"},
			},
		}}
		setup()

		w := post(chatMessage)

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Body.String()).To(ContainSubstring("File a ticket in the IT portal."))
		Expect(w.Body.String()).To(ContainSubstring("I used these sources:"))
		Expect(w.Body.String()).To(ContainSubstring("Hardware requests: https://wiki/hardware"))
		Expect(facade.queries.Load()).To(Equal(int64(1)))
	})

	It("explains when the index is not ready yet", func() {
		facade = &fakeFacade{err: domain.ErrNotReady}
		setup()

		w := post(chatMessage)

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Body.String()).To(ContainSubstring("starting up"))
	})

	It("ignores non-message events", func() {
		facade = &fakeFacade{}
		setup()

		w := post(`{"type":"ADDED_TO_SPACE","space":{"name":"spaces/S1"}}`)

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(facade.queries.Load()).To(BeZero())
	})
})
