package gateway_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	. "github.com/masa-finance/bot-guardian/internal/gateway"
	"github.com/masa-finance/bot-guardian/internal/health"
)

type fakeConn struct {
	mu        sync.Mutex
	failOpens int
	opens     int
	closed    bool
	ack       time.Time
	listener  Listener
}

func (f *fakeConn) Open() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++
	if f.opens <= f.failOpens {
		return errors.New("websocket: bad handshake")
	}
	if f.listener != nil {
		f.listener.MarkConnected()
	}
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) LastHeartbeatAck() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ack
}

func (f *fakeConn) HeartbeatLatency() time.Duration { return 40 * time.Millisecond }

func (f *fakeConn) setAck(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ack = t
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func quickBackOff() backoff.BackOff {
	return backoff.NewConstantBackOff(time.Millisecond)
}

var _ = Describe("Gateway", func() {
	var (
		reporter *health.Reporter
		conn     *fakeConn
	)

	BeforeEach(func() {
		reporter = health.NewReporter(health.Thresholds{HeartbeatInterval: time.Minute})
		conn = &fakeConn{listener: reporter}
	})

	Describe("Open", func() {
		It("should retry until the session opens", func() {
			conn.failOpens = 2
			g := New(conn, reporter, WithBackOff(quickBackOff))

			Expect(g.Open(context.Background())).To(Succeed())
			Expect(conn.opens).To(Equal(3))
			Expect(reporter.State().Connected).To(BeTrue())
		})

		It("should give up once the retry budget is spent", func() {
			conn.failOpens = 100
			g := New(conn, reporter, WithBackOff(quickBackOff), WithOpenRetries(3))

			Expect(g.Open(context.Background())).To(HaveOccurred())
			Expect(conn.opens).To(Equal(4))
			Expect(reporter.Snapshot().GatewayConnected).To(BeFalse())
		})

		It("should stop retrying when the context is cancelled", func() {
			conn.failOpens = 100
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			g := New(conn, reporter, WithBackOff(quickBackOff), WithOpenRetries(50))

			Expect(g.Open(ctx)).To(HaveOccurred())
			Expect(conn.opens).To(BeNumerically("<", 50))
		})
	})

	Describe("Run", func() {
		It("should feed acknowledged heartbeats to the reporter and close on cancel", func() {
			g := New(conn, reporter, WithSampleInterval(10*time.Millisecond))
			Expect(g.Open(context.Background())).To(Succeed())

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() { done <- g.Run(ctx) }()

			ack := time.Now()
			conn.setAck(ack)
			Eventually(func() time.Time {
				return reporter.State().LastHeartbeat
			}).Should(BeTemporally("==", ack))
			Expect(reporter.State().HeartbeatLatency).To(Equal(40 * time.Millisecond))

			cancel()
			Eventually(done).Should(Receive(BeNil()))
			Expect(conn.isClosed()).To(BeTrue())
		})
	})

	Describe("NewDiscordConn", func() {
		It("should refuse an empty token", func() {
			_, err := NewDiscordConn("", reporter)
			Expect(err).To(MatchError(ErrMissingToken))
		})
	})
})
