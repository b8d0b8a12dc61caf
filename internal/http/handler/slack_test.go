package handler_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"askhub.app/askhub/internal/dedup"
	"askhub.app/askhub/internal/domain"
	"askhub.app/askhub/internal/feedback"
	"askhub.app/askhub/internal/http/handler"
	"askhub.app/askhub/internal/pipeline"
	"askhub.app/askhub/internal/platform"
	slackadapter "askhub.app/askhub/internal/platform/slack"
)

func slackEventBody(eventID, channel, user, text string) string {
	return fmt.Sprintf(`{
		"type": "event_callback",
		"event_id": %q,
		"event": {
			"type": "app_mention",
			"user": %q,
			"text": %q,
			"channel": %q,
			"ts": "1700000000.000100"
		}
	}`, eventID, user, text, channel)
}

var _ = Describe("SlackHandler", func() {
	var (
		router *gin.Engine
		facade *fakeFacade
		store  *feedback.MemoryStore
	)

	setup := func(signingSecret string, queueSize int) {
		gin.SetMode(gin.TestMode)
		router = gin.New()
		facade = &fakeFacade{}
		store = feedback.NewMemoryStore()

		adapter := slackadapter.New(slackadapter.Config{
			BotToken:      "xoxb-test",
			SigningSecret: signingSecret,
			BotUserID:     "UBOT",
		})
		registry := platform.NewRegistry(adapter)
		// The pipeline is constructed but never run: queued work must stay
		// queued so tests can observe the ack path in isolation.
		pipe := pipeline.New(pipeline.Config{QueueSize: queueSize, Workers: 1}, facade, registry)

		h := handler.NewSlackHandler(adapter, pipe, feedback.NewRecorder(store), dedup.NewMemory(time.Minute))
		router.POST("/webhooks/slack/events", h.HandleEvent)
		router.POST("/webhooks/slack/actions", h.HandleAction)
	}

	post := func(path, body string, headers map[string]string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	Describe("url verification", func() {
		It("echoes the challenge without touching the index", func() {
			setup("", 4)

			w := post("/webhooks/slack/events", `{"type":"url_verification","challenge":"c0ffee"}`, nil)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.String()).To(ContainSubstring(`"challenge":"c0ffee"`))
			Expect(facade.queries.Load()).To(BeZero())
		})
	})

	Describe("event ingestion", func() {
		It("acknowledges and enqueues without querying inline", func() {
			setup("", 4)

			w := post("/webhooks/slack/events", slackEventBody("Ev1", "C1", "U1", "<@UBOT> how long is onboarding?"), nil)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.String()).To(ContainSubstring(`"ok":true`))
			Expect(w.Header().Get("X-Slack-No-Retry")).To(Equal("1"))
			Expect(facade.queries.Load()).To(BeZero())
		})

		It("ignores redelivered events by event ID", func() {
			setup("", 1)

			first := post("/webhooks/slack/events", slackEventBody("Ev1", "C1", "U1", "question"), nil)
			Expect(first.Code).To(Equal(http.StatusOK))
			Expect(first.Body.String()).To(ContainSubstring(`"ok":true`))

			// Queue is full now; a redelivery marked with the retry header
			// must short-circuit and still ack cleanly.
			retry := post("/webhooks/slack/events", slackEventBody("Ev1", "C1", "U1", "question"),
				map[string]string{"X-Slack-Retry-Num": "1"})
			Expect(retry.Code).To(Equal(http.StatusOK))
			Expect(retry.Body.String()).To(ContainSubstring(`"ok":true`))

			// So must an unmarked redelivery of the same event ID.
			dup := post("/webhooks/slack/events", slackEventBody("Ev1", "C1", "U1", "question"), nil)
			Expect(dup.Code).To(Equal(http.StatusOK))
			Expect(dup.Body.String()).To(ContainSubstring(`"ok":true`))

			// A genuinely new event hits the full queue.
			full := post("/webhooks/slack/events", slackEventBody("Ev2", "C1", "U1", "another question"), nil)
			Expect(full.Code).To(Equal(http.StatusOK))
			Expect(full.Body.String()).To(ContainSubstring(`"error":"busy"`))
		})

		It("rejects malformed payloads", func() {
			setup("", 4)

			w := post("/webhooks/slack/events", `{"type": [not json`, nil)

			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("skips bot messages", func() {
			setup("", 1)

			body := `{
				"type": "event_callback",
				"event_id": "Ev9",
				"event": {"type": "message", "bot_id": "B42", "text": "I am a bot", "channel": "C1", "ts": "1.2"}
			}`
			w := post("/webhooks/slack/events", body, nil)
			Expect(w.Code).To(Equal(http.StatusOK))

			// Queue still has room: the bot message was not enqueued.
			next := post("/webhooks/slack/events", slackEventBody("Ev10", "C1", "U1", "real question"), nil)
			Expect(next.Body.String()).To(ContainSubstring(`"ok":true`))
		})
	})

	Describe("signature verification", func() {
		sign := func(secret, body string) map[string]string {
			ts := fmt.Sprint(time.Now().Unix())
			mac := hmac.New(sha256.New, []byte(secret))
			fmt.Fprintf(mac, "v0:%s:%s", ts, body)
			return map[string]string{
				"X-Slack-Request-Timestamp": ts,
				"X-Slack-Signature":         "v0=" + hex.EncodeToString(mac.Sum(nil)),
			}
		}

		It("accepts a correctly signed request", func() {
			setup("s3cret", 4)

			body := `{"type":"url_verification","challenge":"signed"}`
			w := post("/webhooks/slack/events", body, sign("s3cret", body))

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.String()).To(ContainSubstring("signed"))
		})

		It("rejects a request signed with the wrong secret", func() {
			setup("s3cret", 4)

			body := `{"type":"url_verification","challenge":"forged"}`
			w := post("/webhooks/slack/events", body, sign("wrong", body))

			Expect(w.Code).To(Equal(http.StatusUnauthorized))
		})
	})

	Describe("feedback actions", func() {
		interaction := func(value string) string {
			payload := fmt.Sprintf(`{
				"type": "block_actions",
				"user": {"id": "U1"},
				"channel": {"id": "C1"},
				"container": {"thread_ts": ""},
				"actions": [{"block_id": "feedback", "action_id": "feedback_unsatisfactory", "value": %q}]
			}`, value)
			form := url.Values{}
			form.Set("payload", payload)
			return form.Encode()
		}

		postForm := func(body string) *httptest.ResponseRecorder {
			req := httptest.NewRequest(http.MethodPost, "/webhooks/slack/actions", strings.NewReader(body))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			return w
		}

		It("records the verdict and confirms it by name", func() {
			setup("", 4)

			w := postForm(interaction("Unsatisfactory"))

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.String()).To(ContainSubstring("unsatisfactory"))

			verdict, ok := store.Verdict(domain.PlatformSlack, "C1", "", "U1")
			Expect(ok).To(BeTrue())
			Expect(verdict).To(Equal(domain.VerdictUnsatisfactory))
		})

		It("keeps the latest verdict when a user changes their mind", func() {
			setup("", 4)

			postForm(interaction("Unsatisfactory"))
			postForm(interaction("Satisfactory"))

			verdict, _ := store.Verdict(domain.PlatformSlack, "C1", "", "U1")
			Expect(verdict).To(Equal(domain.VerdictSatisfactory))
		})

		It("stores unknown button values as unknown", func() {
			setup("", 4)

			w := postForm(interaction("Shrug"))

			Expect(w.Code).To(Equal(http.StatusOK))
			verdict, ok := store.Verdict(domain.PlatformSlack, "C1", "", "U1")
			Expect(ok).To(BeTrue())
			Expect(verdict).To(Equal(domain.VerdictUnknown))
		})

		It("rejects a missing payload", func() {
			setup("", 4)

			w := postForm("")
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})
	})
})
