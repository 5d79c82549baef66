package deployd_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/labstack/echo/v4"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/masa-finance/bot-guardian/api/types"
	. "github.com/masa-finance/bot-guardian/internal/deployd"
	"github.com/masa-finance/bot-guardian/pkg/client"
)

type flakyRefresher struct {
	failures int32
	calls    atomic.Int32
	block    chan struct{}
}

func (f *flakyRefresher) Refresh(context.Context) (*types.RestartResponse, error) {
	n := f.calls.Add(1)
	if f.block != nil {
		<-f.block
	}
	if n <= f.failures {
		return nil, errors.New("connection refused")
	}
	return &types.RestartResponse{Result: types.RestartTriggered}, nil
}

type refresherFunc func() error

func (f refresherFunc) Refresh(context.Context) (*types.RestartResponse, error) {
	if err := f(); err != nil {
		return nil, err
	}
	return &types.RestartResponse{Result: types.RestartTriggered}, nil
}

func quickBackOff() backoff.BackOff {
	return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 5)
}

var _ = Describe("Daemon", func() {
	It("should retry the refresh until the worker answers", func() {
		r := &flakyRefresher{failures: 3}
		d := New(r, WithBackOff(quickBackOff))

		Expect(d.Refresh(context.Background(), "test")).To(Succeed())
		Expect(r.calls.Load()).To(Equal(int32(4)))
		Expect(d.Refreshes()).To(Equal(int64(1)))
	})

	It("should give up once the backoff budget is spent", func() {
		r := &flakyRefresher{failures: 100}
		d := New(r, WithBackOff(quickBackOff))

		Expect(d.Refresh(context.Background(), "test")).To(HaveOccurred())
		Expect(r.calls.Load()).To(Equal(int32(6)))
		Expect(d.Refreshes()).To(BeZero())
	})

	It("should not retry a refresh the worker rejects", func() {
		calls := 0
		r := refresherFunc(func() error {
			calls++
			return &client.StatusError{Code: http.StatusUnauthorized, Path: "/refresh"}
		})
		d := New(r, WithBackOff(quickBackOff))

		err := d.Refresh(context.Background(), "test")
		var se *client.StatusError
		Expect(errors.As(err, &se)).To(BeTrue())
		Expect(se.Code).To(Equal(http.StatusUnauthorized))
		Expect(calls).To(Equal(1))
	})

	It("should retry server errors", func() {
		calls := 0
		r := refresherFunc(func() error {
			calls++
			if calls < 3 {
				return &client.StatusError{Code: http.StatusBadGateway, Path: "/refresh"}
			}
			return nil
		})
		d := New(r, WithBackOff(quickBackOff))

		Expect(d.Refresh(context.Background(), "test")).To(Succeed())
		Expect(calls).To(Equal(3))
	})

	It("should coalesce triggers while a refresh is in flight", func() {
		r := &flakyRefresher{block: make(chan struct{})}
		d := New(r, WithBackOff(quickBackOff))

		Expect(d.Trigger(context.Background(), "first")).To(BeTrue())
		Expect(d.Trigger(context.Background(), "second")).To(BeFalse())

		close(r.block)
		Eventually(d.InFlight).Should(BeFalse())
		Expect(r.calls.Load()).To(Equal(int32(1)))
		Expect(d.Refreshes()).To(Equal(int64(1)))
	})
})

var _ = Describe("Server", func() {
	var (
		r *flakyRefresher
		d *Daemon
		e *echo.Echo
	)

	BeforeEach(func() {
		r = &flakyRefresher{}
		d = New(r, WithBackOff(quickBackOff))
		e = NewServer(context.Background(), d, "s3cret")
	})

	post := func(body, token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, DispatchPath, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}

	It("should reject dispatches without the token", func() {
		rec := post(`{"event_type":"restart"}`, "")
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		rec = post(`{"event_type":"restart"}`, "wrong")
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		Expect(r.calls.Load()).To(BeZero())
	})

	It("should reject unknown events", func() {
		rec := post(`{"event_type":"deploy"}`, "s3cret")
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	It("should accept a restart dispatch and refresh the worker", func() {
		rec := post(`{"event_type":"restart","alert_type":1,"reason":"health check failed"}`, "s3cret")
		Expect(rec.Code).To(Equal(http.StatusAccepted))
		Expect(rec.Body.String()).To(MatchJSON(`{"status":"accepted"}`))
		Eventually(d.Refreshes).Should(Equal(int64(1)))
	})

	It("should answer health checks without auth", func() {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, HealthPath, nil))
		Expect(rec.Code).To(Equal(http.StatusOK))
	})
})

var _ = Describe("Watch", func() {
	It("should report a burst of changes once", func() {
		dir := GinkgoT().TempDir()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		var mu sync.Mutex
		var changes []string
		done := make(chan error, 1)
		go func() {
			done <- Watch(ctx, dir, 100*time.Millisecond, func(name string) {
				mu.Lock()
				defer mu.Unlock()
				changes = append(changes, name)
			})
		}()
		count := func() int {
			mu.Lock()
			defer mu.Unlock()
			return len(changes)
		}

		// Give the watcher time to register.
		time.Sleep(100 * time.Millisecond)
		for i := 0; i < 5; i++ {
			Expect(os.WriteFile(filepath.Join(dir, "main"), []byte{byte(i)}, 0o644)).To(Succeed())
		}

		Eventually(count, 2*time.Second).Should(Equal(1))
		Consistently(count, 300*time.Millisecond).Should(Equal(1))

		cancel()
		Eventually(done).Should(Receive(BeNil()))
	})

	It("should fail on a missing path", func() {
		err := Watch(context.Background(), filepath.Join(GinkgoT().TempDir(), "nope"), time.Millisecond, func(string) {})
		Expect(err).To(HaveOccurred())
	})
})
