package lifecycle_test

import (
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	. "github.com/masa-finance/bot-guardian/internal/lifecycle"
)

var _ = Describe("Terminator", func() {
	var (
		fires atomic.Int32
		exits chan int
		term  *Terminator
	)

	BeforeEach(func() {
		fires.Store(0)
		exits = make(chan int, 4)
		term = NewTerminator(
			WithDelay(50*time.Millisecond),
			WithShutdownTimeout(100*time.Millisecond),
			WithOnFire(func() { fires.Add(1) }),
			WithExitFunc(func(code int) { exits <- code }),
		)
	})

	It("should have a generation id", func() {
		Expect(term.Generation()).NotTo(BeEmpty())
		Expect(NewTerminator().Generation()).NotTo(Equal(term.Generation()))
	})

	It("should not fire before the delay", func() {
		Expect(term.Schedule("webhook")).To(BeTrue())
		Expect(term.Pending()).To(BeTrue())
		Expect(term.HasFired()).To(BeFalse())
		Eventually(term.Fired()).Should(BeClosed())
		Expect(fires.Load()).To(Equal(int32(1)))
		Expect(term.Reason()).To(Equal("webhook"))
	})

	It("should fire exactly once for repeated requests", func() {
		Expect(term.Schedule("webhook")).To(BeTrue())
		Expect(term.Schedule("webhook")).To(BeFalse())
		Expect(term.Schedule("refresh")).To(BeFalse())

		Eventually(term.Fired()).Should(BeClosed())
		Consistently(fires.Load, 200*time.Millisecond).Should(Equal(int32(1)))
		Expect(term.Reason()).To(Equal("webhook"))
	})

	It("should absorb concurrent requests from both channels", func() {
		var armed atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				reason := "webhook"
				if i%2 == 0 {
					reason = "refresh"
				}
				if term.Schedule(reason) {
					armed.Add(1)
				}
			}(i)
		}
		wg.Wait()

		Expect(armed.Load()).To(Equal(int32(1)))
		Eventually(term.Fired()).Should(BeClosed())
		Consistently(fires.Load, 200*time.Millisecond).Should(Equal(int32(1)))
	})

	It("should hard exit when graceful shutdown does not finish in time", func() {
		term.Schedule("webhook")
		Eventually(exits).Should(Receive(Equal(ExitRestart)))
		Consistently(exits, 200*time.Millisecond).ShouldNot(Receive())
	})
})
