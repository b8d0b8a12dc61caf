package handler_test

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"askhub.app/askhub/internal/domain"
	"askhub.app/askhub/internal/feedback"
	"askhub.app/askhub/internal/http/handler"
	"askhub.app/askhub/internal/pipeline"
	"askhub.app/askhub/internal/platform"
	teamsadapter "askhub.app/askhub/internal/platform/teams"
)

// connectorStub plays both the token endpoint and the conversation service a
// real Bot Framework deployment would provide.
type connectorStub struct {
	mu         sync.Mutex
	tokenCalls int
	activities []recordedActivity
}

type recordedActivity struct {
	path string
	auth string
	body string
}

func (s *connectorStub) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			s.mu.Lock()
			s.tokenCalls++
			s.mu.Unlock()
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"access_token":"test-token","token_type":"Bearer","expires_in":3600}`)
			return
		}

		body, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		s.activities = append(s.activities, recordedActivity{
			path: r.URL.Path,
			auth: r.Header.Get("Authorization"),
			body: string(body),
		})
		s.mu.Unlock()
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{"id":"reply-1"}`)
	}
}

func (s *connectorStub) recorded() []recordedActivity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]recordedActivity(nil), s.activities...)
}

func teamsActivity(text, serviceURL string) string {
	return fmt.Sprintf(`{
		"type": "message",
		"id": "act-1",
		"serviceUrl": %q,
		"channelId": "msteams",
		"from": {"id": "user-1", "name": "Pat"},
		"recipient": {"id": "bot-1", "name": "askhub"},
		"conversation": {"id": "conv-1"},
		"text": %q
	}`, serviceURL, text)
}

var _ = Describe("TeamsHandler", func() {
	var (
		router *gin.Engine
		stub   *connectorStub
		server *httptest.Server
		store  *feedback.MemoryStore
		facade *fakeFacade
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		router = gin.New()
		stub = &connectorStub{}
		server = httptest.NewServer(stub.handler())
		DeferCleanup(server.Close)

		store = feedback.NewMemoryStore()
		facade = &fakeFacade{}

		adapter := teamsadapter.New(teamsadapter.Config{
			AppID:       "app-id",
			AppPassword: "app-secret",
			TokenURL:    server.URL + "/token",
			TokenScope:  "https://api.botframework.com/.default",
			BotMention:  "@askhub",
			HTTPClient:  server.Client(),
		})
		registry := platform.NewRegistry(adapter)
		pipe := pipeline.New(pipeline.Config{QueueSize: 1, Workers: 1}, facade, registry)

		h := handler.NewTeamsHandler(adapter, pipe, feedback.NewRecorder(store))
		router.POST("/webhooks/teams/messages", h.HandleActivity)
	})

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/teams/messages", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	It("ignores non-message activities", func() {
		w := post(`{"type":"conversationUpdate","conversation":{"id":"conv-1"}}`)

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(stub.recorded()).To(BeEmpty())
		Expect(facade.queries.Load()).To(BeZero())
	})

	It("acknowledges questions without querying inline", func() {
		w := post(teamsActivity("@askhub what is the leave policy?", server.URL))

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(facade.queries.Load()).To(BeZero())
	})

	It("records marked feedback and posts a confirmation", func() {
		w := post(teamsActivity("Feedback: Unsatisfactory", server.URL))

		Expect(w.Code).To(Equal(http.StatusOK))

		verdict, ok := store.Verdict(domain.PlatformTeams, "conv-1", "", "user-1")
		Expect(ok).To(BeTrue())
		Expect(verdict).To(Equal(domain.VerdictUnsatisfactory))

		acts := stub.recorded()
		Expect(acts).To(HaveLen(1))
		Expect(acts[0].path).To(Equal("/v3/conversations/conv-1/activities"))
		Expect(acts[0].auth).To(Equal("Bearer test-token"))
		Expect(acts[0].body).To(ContainSubstring("unsatisfactory"))
	})

	It("treats feedback as answer delivery, not a new question", func() {
		post(teamsActivity("Feedback: Satisfactory", server.URL))

		// Queue has room: nothing was enqueued for the feedback message.
		w := post(teamsActivity("a real question", server.URL))
		Expect(w.Code).To(Equal(http.StatusOK))
	})
})
