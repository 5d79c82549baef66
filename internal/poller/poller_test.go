package poller_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/masa-finance/bot-guardian/api/types"
	"github.com/masa-finance/bot-guardian/internal/notify"
	. "github.com/masa-finance/bot-guardian/internal/poller"
)

type observation struct {
	code int
	err  error
}

type fakeTarget struct {
	observations []observation
	calls        int
	restarts     []types.AlertType
}

func (f *fakeTarget) HealthDetailed(context.Context) (*types.HealthSnapshot, int, error) {
	p := f.observations[len(f.observations)-1]
	if f.calls < len(f.observations) {
		p = f.observations[f.calls]
	}
	f.calls++
	if p.err != nil {
		return nil, 0, p.err
	}
	status := types.HealthHealthy
	if p.code != http.StatusOK {
		status = types.HealthUnhealthy
	}
	return &types.HealthSnapshot{Status: status}, p.code, nil
}

func (f *fakeTarget) TriggerRestart(_ context.Context, alert types.AlertType, _ string) (*types.RestartResponse, error) {
	f.restarts = append(f.restarts, alert)
	return &types.RestartResponse{Result: types.RestartTriggered}, nil
}

type fakeDispatcher struct {
	requests []types.DispatchRequest
}

func (f *fakeDispatcher) Dispatch(_ context.Context, r types.DispatchRequest) error {
	f.requests = append(f.requests, r)
	return nil
}

type recordingNotifier struct {
	statuses []notify.Status
}

func (r *recordingNotifier) Notify(_ context.Context, ev notify.Event) error {
	r.statuses = append(r.statuses, ev.Status)
	return nil
}

var (
	up      = observation{code: http.StatusOK}
	down    = observation{code: http.StatusServiceUnavailable}
	refused = observation{err: errors.New("connection refused")}
)

var _ = Describe("Poller", func() {
	var (
		target     *fakeTarget
		dispatcher *fakeDispatcher
		notifier   *recordingNotifier
		cfg        Config
	)

	BeforeEach(func() {
		target = &fakeTarget{}
		dispatcher = &fakeDispatcher{}
		notifier = &recordingNotifier{}
		cfg = Config{Interval: time.Minute, Timeout: time.Second, FailureThreshold: 1}
	})

	pollAll := func(p *Poller, n int) {
		for i := 0; i < n; i++ {
			p.PollOnce(context.Background())
		}
	}

	newPoller := func() *Poller {
		p, err := New(cfg, target, WithDispatcher(dispatcher), WithNotifier(notifier))
		Expect(err).NotTo(HaveOccurred())
		return p
	}

	It("should validate its configuration", func() {
		_, err := New(Config{}, target)
		Expect(err).To(HaveOccurred())
		_, err = New(cfg, nil)
		Expect(err).To(HaveOccurred())
	})

	It("should stay quiet while the target is up", func() {
		target.observations = []observation{up}
		p := newPoller()
		pollAll(p, 5)

		Expect(target.restarts).To(BeEmpty())
		Expect(dispatcher.requests).To(BeEmpty())
		Expect(notifier.statuses).To(BeEmpty())
	})

	It("should act exactly once per down transition", func() {
		target.observations = []observation{up, down, down, refused, down}
		p := newPoller()
		pollAll(p, 5)

		Expect(p.State()).To(Equal(StateDown))
		Expect(target.restarts).To(Equal([]types.AlertType{types.AlertDown}))
		Expect(dispatcher.requests).To(HaveLen(1))
		Expect(dispatcher.requests[0].EventType).To(Equal(types.DispatchEventRestart))
		Expect(dispatcher.requests[0].AlertType).To(Equal(types.AlertDown))
		Expect(notifier.statuses).To(Equal([]notify.Status{notify.StatusOffline}))
	})

	It("should only notify on recovery by default", func() {
		target.observations = []observation{down, up, up}
		p := newPoller()
		pollAll(p, 3)

		Expect(p.State()).To(Equal(StateUp))
		Expect(target.restarts).To(Equal([]types.AlertType{types.AlertDown}))
		Expect(notifier.statuses).To(Equal([]notify.Status{notify.StatusOffline, notify.StatusOnline}))
	})

	It("should send recovery alerts when enabled", func() {
		cfg.SendRecoveryAlerts = true
		target.observations = []observation{down, up}
		pollAll(newPoller(), 2)

		Expect(target.restarts).To(Equal([]types.AlertType{types.AlertDown, types.AlertUp}))
	})

	It("should require consecutive failures before going down", func() {
		cfg.FailureThreshold = 3
		target.observations = []observation{down, down, up, down, down, down, down}
		p := newPoller()

		pollAll(p, 5)
		Expect(p.State()).To(Equal(StateUp))
		Expect(target.restarts).To(BeEmpty())

		pollAll(p, 2)
		Expect(p.State()).To(Equal(StateDown))
		Expect(target.restarts).To(HaveLen(1))
	})
})

var _ = Describe("HTTPDispatcher", func() {
	It("should post the request with the bearer token", func() {
		var got types.DispatchRequest
		var auth string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth = r.Header.Get("Authorization")
			_ = json.NewDecoder(r.Body).Decode(&got)
			w.WriteHeader(http.StatusAccepted)
		}))
		defer server.Close()

		d := NewHTTPDispatcher(server.URL+"/dispatch", "s3cret")
		err := d.Dispatch(context.Background(), types.DispatchRequest{EventType: types.DispatchEventRestart, AlertType: types.AlertDown})
		Expect(err).NotTo(HaveOccurred())
		Expect(auth).To(Equal("Bearer s3cret"))
		Expect(got.EventType).To(Equal("restart"))
		Expect(got.AlertType).To(Equal(types.AlertDown))
	})

	It("should fail on a rejected dispatch", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		err := NewHTTPDispatcher(server.URL, "").Dispatch(context.Background(), types.DispatchRequest{})
		Expect(err).To(MatchError(ContainSubstring("401")))
	})
})
