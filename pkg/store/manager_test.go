package store_test

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/alicebob/miniredis/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"

	"github.com/papercomputeco/ephemera/pkg/store"
	"github.com/papercomputeco/ephemera/pkg/store/storetest"
)

// failing returns an Operation that fails n times with a transient error
// before pinging, recording every invocation in calls.
func failing(n int, calls *int) store.Operation {
	return func(ctx context.Context, c *redis.Client) error {
		*calls++
		if *calls <= n {
			return io.EOF
		}
		return c.Ping(ctx).Err()
	}
}

var _ = Describe("Manager", func() {
	var (
		mr  *miniredis.Miniredis
		cfg store.Config
		m   *store.Manager
		ctx context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		mr = miniredis.RunT(GinkgoT())
		cfg = storetest.Config(mr)
	})

	JustBeforeEach(func() {
		var err error
		m, err = store.Connect(ctx, cfg)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(m.Close)
	})

	Describe("Connect", func() {
		It("starts healthy", func() {
			stats := m.Stats()
			Expect(stats.Status).To(Equal(store.StatusHealthy))
			Expect(stats.MaxConns).To(Equal(20))
			Expect(stats.LastHealthCheck).NotTo(BeZero())
		})
	})

	Describe("Execute", func() {
		It("survives failures below the retry limit", func() {
			calls := 0
			Expect(m.Execute(ctx, "ping", failing(cfg.MaxRetries, &calls))).To(Succeed())
			Expect(calls).To(Equal(cfg.MaxRetries + 1))
			Expect(m.Status()).To(Equal(store.StatusHealthy))
		})

		It("gives up one failure past the limit and recovers on the next probe", func() {
			calls := 0
			err := m.Execute(ctx, "ping", failing(cfg.MaxRetries+1, &calls))

			var storeErr *store.StoreError
			Expect(errors.As(err, &storeErr)).To(BeTrue())
			Expect(storeErr.Attempts).To(Equal(cfg.MaxRetries + 1))
			Expect(storeErr.Transient).To(BeTrue())
			Expect(err).To(MatchError(io.EOF))
			Expect(m.Status()).To(Equal(store.StatusUnhealthy))

			Expect(m.HealthCheck(ctx)).To(Succeed())
			Expect(m.Status()).To(Equal(store.StatusHealthy))
		})

		It("does not retry a malformed command", func() {
			calls := 0
			err := m.Execute(ctx, "bogus", func(ctx context.Context, c *redis.Client) error {
				calls++
				return c.Do(ctx, "NOSUCHCOMMAND").Err()
			})

			var storeErr *store.StoreError
			Expect(errors.As(err, &storeErr)).To(BeTrue())
			Expect(storeErr.Transient).To(BeFalse())
			Expect(calls).To(Equal(1))
			Expect(m.Status()).To(Equal(store.StatusHealthy))
		})

		It("passes redis.Nil through untouched", func() {
			err := m.Execute(ctx, "get", func(ctx context.Context, c *redis.Client) error {
				return c.Get(ctx, "missing").Err()
			})
			Expect(err).To(Equal(redis.Nil))
		})

		Context("with a long backoff", func() {
			BeforeEach(func() {
				cfg.RetryBackoff = time.Second
			})

			It("stops at the caller's deadline without flipping status", func() {
				short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
				defer cancel()

				calls := 0
				start := time.Now()
				err := m.Execute(short, "ping", failing(100, &calls))

				Expect(err).To(MatchError(context.DeadlineExceeded))
				Expect(time.Since(start)).To(BeNumerically("<", 900*time.Millisecond))
				Expect(calls).To(Equal(1))
				Expect(m.Status()).To(Equal(store.StatusHealthy))
			})
		})
	})

	Describe("Do", func() {
		It("runs raw commands", func() {
			_, err := m.Do(ctx, "SET", "greeting", "hi")
			Expect(err).NotTo(HaveOccurred())
			Expect(mr.Get("greeting")).To(Equal("hi"))

			v, err := m.Do(ctx, "GET", "greeting")
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal("hi"))
		})
	})

	Describe("HealthCheck", func() {
		Context("with a low degraded threshold", func() {
			BeforeEach(func() {
				cfg.DegradedErrorThreshold = 2
			})

			It("degrades on an elevated error rate and clears next window", func() {
				for range 2 {
					calls := 0
					Expect(m.Execute(ctx, "ping", failing(1, &calls))).To(Succeed())
				}
				Expect(m.HealthCheck(ctx)).To(Succeed())
				Expect(m.Status()).To(Equal(store.StatusDegraded))

				Expect(m.HealthCheck(ctx)).To(Succeed())
				Expect(m.Status()).To(Equal(store.StatusHealthy))
			})
		})

		It("goes unhealthy while the server is down and heals after restart", func() {
			mr.Close()
			Expect(m.HealthCheck(ctx)).NotTo(Succeed())
			Expect(m.Status()).To(Equal(store.StatusUnhealthy))
			Expect(m.Stats().FailedConns).To(BeNumerically(">=", 1))

			Expect(mr.Restart()).To(Succeed())
			Expect(m.HealthCheck(ctx)).To(Succeed())
			Expect(m.Status()).To(Equal(store.StatusHealthy))

			_, err := m.Do(ctx, "SET", "after", "restart")
			Expect(err).NotTo(HaveOccurred())
		})

		It("reconnects on first use after an outage", func() {
			mr.Close()
			Expect(m.HealthCheck(ctx)).NotTo(Succeed())
			Expect(mr.Restart()).To(Succeed())

			time.Sleep(5 * time.Millisecond)
			_, err := m.Do(ctx, "PING")
			Expect(err).NotTo(HaveOccurred())
			Expect(m.Status()).To(Equal(store.StatusHealthy))
		})

		It("reports through Health", func() {
			r := m.Health(ctx)
			Expect(r.Healthy).To(BeTrue())
			Expect(r.Stats.Status).To(Equal(store.StatusHealthy))
		})
	})

	Describe("Close", func() {
		It("is idempotent and rejects later work", func() {
			Expect(m.Close()).To(Succeed())
			Expect(m.Close()).To(Succeed())
			Expect(m.Status()).To(Equal(store.StatusDisconnected))

			_, err := m.Do(ctx, "PING")
			Expect(err).To(MatchError(store.ErrClosed))
			Expect(m.HealthCheck(ctx)).To(MatchError(store.ErrClosed))
		})
	})
})

var _ = Describe("Connect failure", func() {
	It("returns a ConnectionError after the configured attempts", func() {
		mr := miniredis.RunT(GinkgoT())
		cfg := storetest.Config(mr)
		cfg.MaxRetries = 2
		mr.Close()

		_, err := store.Connect(context.Background(), cfg)
		var connErr *store.ConnectionError
		Expect(errors.As(err, &connErr)).To(BeTrue())
		Expect(connErr.Attempts).To(Equal(3))
		Expect(connErr.Addr).To(Equal(cfg.Addr()))
	})
})

var _ = Describe("Status", func() {
	It("renders as text", func() {
		b, err := store.StatusDegraded.MarshalText()
		Expect(err).NotTo(HaveOccurred())
		Expect(string(b)).To(Equal("degraded"))
		Expect(store.Status(42).String()).To(Equal("disconnected"))
	})
})
