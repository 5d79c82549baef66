package notify_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	. "github.com/masa-finance/bot-guardian/internal/notify"
)

var _ = Describe("WebhookNotifier", func() {
	var (
		server   *httptest.Server
		received []map[string]any
		status   int
	)

	BeforeEach(func() {
		received = nil
		status = http.StatusNoContent
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			Expect(r.Method).To(Equal(http.MethodPost))
			Expect(r.Header.Get("Content-Type")).To(Equal("application/json"))

			var body map[string]any
			Expect(json.NewDecoder(r.Body).Decode(&body)).To(Succeed())
			received = append(received, body)
			w.WriteHeader(status)
		}))
	})

	AfterEach(func() {
		server.Close()
	})

	It("should post the event as an embed", func() {
		n := NewWebhookNotifier(server.URL)
		err := n.Notify(context.Background(), Event{
			Status:       StatusRestarting,
			Message:      "worker exited with code 1",
			RestartCount: 3,
			Time:         time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(received).To(HaveLen(1))

		embeds := received[0]["embeds"].([]any)
		Expect(embeds).To(HaveLen(1))
		embed := embeds[0].(map[string]any)
		Expect(embed).To(HaveKeyWithValue("title", "Bot restarting"))
		Expect(embed).To(HaveKeyWithValue("description", "worker exited with code 1"))
		Expect(embed).To(HaveKeyWithValue("timestamp", "2026-01-02T03:04:05Z"))

		fields := embed["fields"].([]any)
		Expect(fields[0]).To(HaveKeyWithValue("value", "3"))
	})

	It("should list extra fields in name order after the restart count", func() {
		err := NewWebhookNotifier(server.URL).Notify(context.Background(), Event{
			Status:       StatusRestarting,
			RestartCount: 2,
			Fields:       map[string]string{"uptime": "4s", "exit_code": "1", "delay": "10s", "signal": "none"},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(received).To(HaveLen(1))

		embed := received[0]["embeds"].([]any)[0].(map[string]any)
		var names []any
		for _, f := range embed["fields"].([]any) {
			names = append(names, f.(map[string]any)["name"])
		}
		Expect(names).To(Equal([]any{"Restarts", "delay", "exit_code", "signal", "uptime"}))
	})

	It("should report a rejected delivery", func() {
		status = http.StatusBadRequest
		err := NewWebhookNotifier(server.URL).Notify(context.Background(), Event{Status: StatusFailed})
		Expect(err).To(MatchError(ContainSubstring("400")))
	})

	It("should fall back to a no-op without a URL", func() {
		Expect(New("").Notify(context.Background(), Event{Status: StatusOnline})).To(Succeed())
		Expect(received).To(BeEmpty())
	})
})
