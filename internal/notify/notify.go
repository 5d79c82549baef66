package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"
)

// Status is the lifecycle stage an Event reports.
type Status string

const (
	StatusStarting   Status = "starting"
	StatusRestarting Status = "restarting"
	StatusOnline     Status = "online"
	StatusOffline    Status = "offline"
	StatusFailed     Status = "failed"
)

// Embed colours per status.
var colors = map[Status]int{
	StatusStarting:   0x3498db,
	StatusRestarting: 0xf1c40f,
	StatusOnline:     0x2ecc71,
	StatusOffline:    0xe67e22,
	StatusFailed:     0xe74c3c,
}

type Event struct {
	Status       Status
	Message      string
	RestartCount int
	Fields       map[string]string
	Time         time.Time
}

// Notifier delivers status events to operators. Delivery failures are
// reported to the caller, which is expected to log and carry on.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

type noop struct{}

func (noop) Notify(context.Context, Event) error { return nil }

// Noop discards every event.
func Noop() Notifier {
	return noop{}
}

// New returns a webhook notifier for url, or Noop when url is empty.
func New(url string) Notifier {
	if url == "" {
		return Noop()
	}
	return NewWebhookNotifier(url)
}

// WebhookNotifier posts events as embeds to a chat webhook.
type WebhookNotifier struct {
	url      string
	username string
	client   *http.Client
}

func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:      url,
		username: "Bot Guardian",
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (w *WebhookNotifier) Notify(ctx context.Context, ev Event) error {
	body, err := json.Marshal(w.params(ev))
	if err != nil {
		return fmt.Errorf("error marshaling webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("error creating webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("error sending webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status code %d", resp.StatusCode)
	}

	logrus.WithField("status", ev.Status).Debug("Status notification delivered")
	return nil
}

func (w *WebhookNotifier) params(ev Event) *discordgo.WebhookParams {
	at := ev.Time
	if at.IsZero() {
		at = time.Now()
	}

	embed := &discordgo.MessageEmbed{
		Title:       "Bot " + string(ev.Status),
		Description: ev.Message,
		Color:       colors[ev.Status],
		Timestamp:   at.UTC().Format(time.RFC3339),
	}
	if ev.RestartCount > 0 {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   "Restarts",
			Value:  strconv.Itoa(ev.RestartCount),
			Inline: true,
		})
	}
	names := make([]string, 0, len(ev.Fields))
	for name := range ev.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: name, Value: ev.Fields[name], Inline: true})
	}

	return &discordgo.WebhookParams{
		Username: w.username,
		Embeds:   []*discordgo.MessageEmbed{embed},
	}
}
