package cache_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/alicebob/miniredis/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/ephemera/pkg/cache"
	"github.com/papercomputeco/ephemera/pkg/store"
	"github.com/papercomputeco/ephemera/pkg/store/storetest"
)

// hookedExecutor runs a callback once right after the named operation.
type hookedExecutor struct {
	store.Executor
	mu    sync.Mutex
	after map[string]func()
}

func (h *hookedExecutor) Execute(ctx context.Context, name string, op store.Operation) error {
	err := h.Executor.Execute(ctx, name, op)
	h.mu.Lock()
	fn := h.after[name]
	delete(h.after, name)
	h.mu.Unlock()
	if fn != nil {
		fn()
	}
	return err
}

type analysis struct {
	Sentiment string  `json:"sentiment"`
	Score     float64 `json:"score"`
}

var _ = Describe("Cache", func() {
	var (
		ctx context.Context
		mr  *miniredis.Miniredis
		m   *store.Manager
		c   *cache.Cache
	)

	BeforeEach(func() {
		ctx = context.Background()
		mr, m = storetest.Start()
		c = cache.New(m, cache.DefaultConfig())
	})

	Describe("Put and Get", func() {
		It("returns what was stored until the tier TTL elapses", func() {
			k := cache.NewKey(cache.CategoryAnalysis, "s1")
			Expect(c.Put(ctx, k, analysis{Sentiment: "calm", Score: 0.8}, cache.TierHot)).To(Succeed())
			Expect(mr.TTL(k.String())).To(Equal(5 * time.Minute))

			var got analysis
			ok, err := c.GetInto(ctx, k, &got)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(got).To(Equal(analysis{Sentiment: "calm", Score: 0.8}))

			mr.FastForward(5*time.Minute + time.Second)
			_, ok, err = c.Get(ctx, k)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})

		It("returns the identical bytes", func() {
			k := cache.NewKey(cache.CategoryContext, "s1", "summary")
			Expect(c.Put(ctx, k, map[string]string{"topic": "go"}, cache.TierWarm)).To(Succeed())

			b, ok, err := c.Get(ctx, k)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(string(b)).To(MatchJSON(`{"topic":"go"}`))
		})

		It("tracks requests, hits and misses", func() {
			k := cache.NewKey(cache.CategorySession, "s1")
			Expect(c.Put(ctx, k, "x", cache.TierCold)).To(Succeed())
			for range 3 {
				_, _, err := c.Get(ctx, k)
				Expect(err).NotTo(HaveOccurred())
			}
			_, ok, err := c.Get(ctx, cache.NewKey(cache.CategorySession, "nope"))
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())

			st := c.Stats()
			Expect(st.Requests).To(BeEquivalentTo(4))
			Expect(st.Hits).To(BeEquivalentTo(3))
			Expect(st.Misses).To(BeEquivalentTo(1))
			Expect(st.HitRate).To(BeNumerically("~", 0.75, 1e-9))
			Expect(c.Accesses(k)).To(BeEquivalentTo(4))
		})

		It("rejects malformed keys and tiers", func() {
			err := c.Put(ctx, cache.NewKey("weather", "s1"), "x", cache.TierHot)
			Expect(errors.Is(err, cache.ErrInvalidKey)).To(BeTrue())

			err = c.Put(ctx, cache.NewKey(cache.CategorySession, "s1"), "x", "tepid")
			var ce *cache.CacheError
			Expect(errors.As(err, &ce)).To(BeTrue())
		})

		It("evicts payloads it cannot decode", func() {
			k := cache.NewKey(cache.CategoryAnalysis, "s1")
			Expect(mr.Set(k.String(), "{oops")).To(Succeed())

			var got analysis
			ok, err := c.GetInto(ctx, k, &got)
			Expect(ok).To(BeFalse())
			var ce *cache.CacheError
			Expect(errors.As(err, &ce)).To(BeTrue())
			Expect(ce.Op).To(Equal("decode"))
			Expect(mr.Exists(k.String())).To(BeFalse())
		})

		It("reports store failures as CacheError", func() {
			mr.SetError("ERR down")
			_, ok, err := c.Get(ctx, cache.NewKey(cache.CategorySession, "s1"))
			Expect(ok).To(BeFalse())
			var ce *cache.CacheError
			Expect(errors.As(err, &ce)).To(BeTrue())
			Expect(c.Stats().Errors).To(BeEquivalentTo(1))
		})
	})

	Describe("Invalidate", func() {
		It("removes only keys owned by the session", func() {
			for _, k := range []cache.Key{
				cache.NewKey(cache.CategoryMessages, "s1"),
				cache.NewKey(cache.CategoryParticipant, "s1", "a"),
				cache.NewKey(cache.CategoryAnalysis, "s1", "sentiment"),
				cache.NewKey(cache.CategoryMessages, "s10"),
				cache.NewKey(cache.CategoryParticipant, "s2", "s1x"),
				cache.NewKey(cache.CategoryParticipant, "s2", "s1"),
			} {
				Expect(c.Put(ctx, k, "x", cache.TierWarm)).To(Succeed())
			}
			Expect(mr.Set("session:s1:other", "untouched")).To(Succeed())

			n, err := c.Invalidate(ctx, "s1")
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(3))
			Expect(mr.Exists("cache:messages:s10")).To(BeTrue())
			Expect(mr.Exists("cache:participant:s2:s1x")).To(BeTrue())
			Expect(mr.Exists("cache:participant:s2:s1")).To(BeTrue(), "a user id equal to the session id is not an owner")
			Expect(mr.Exists("session:s1:other")).To(BeTrue())
			Expect(c.Accesses(cache.NewKey(cache.CategoryMessages, "s1"))).To(BeZero())
		})

		It("does not treat a literal key part as a session", func() {
			window := cache.NewKey(cache.CategoryMessages, "s2", "recent")
			Expect(c.Put(ctx, window, "x", cache.TierHot)).To(Succeed())

			n, err := c.Invalidate(ctx, "recent")
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(BeZero())
			Expect(mr.Exists(window.String())).To(BeTrue())
		})

		It("clears several sessions in one pass", func() {
			for _, id := range []string{"a", "b", "c"} {
				Expect(c.Put(ctx, cache.NewKey(cache.CategorySession, id), "x", cache.TierWarm)).To(Succeed())
			}
			n, err := c.Invalidate(ctx, "a", "c")
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(2))
			Expect(mr.Keys()).To(ConsistOf("cache:session:b"))
		})

		It("is zero for an unknown session", func() {
			n, err := c.Invalidate(ctx, "ghost")
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(BeZero())
		})
	})

	Describe("Reserve and Fill", func() {
		k := cache.NewKey(cache.CategoryMessages, "s1", "recent")

		It("fills a claimed key", func() {
			token, err := c.Reserve(ctx, k)
			Expect(err).NotTo(HaveOccurred())
			Expect(token).NotTo(BeEmpty())

			_, ok, err := c.Get(ctx, k)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse(), "a claim reads as a miss")

			stored, err := c.Fill(ctx, k, token, []string{"hello"}, cache.TierHot)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored).To(BeTrue())
			Expect(mr.TTL(k.String())).To(Equal(5 * time.Minute))

			var got []string
			ok, err = c.GetInto(ctx, k, &got)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(got).To(Equal([]string{"hello"}))
		})

		It("drops the fill when the key was evicted after the claim", func() {
			token, err := c.Reserve(ctx, k)
			Expect(err).NotTo(HaveOccurred())
			Expect(c.Evict(ctx, k)).To(Succeed())

			stored, err := c.Fill(ctx, k, token, []string{"stale"}, cache.TierHot)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored).To(BeFalse())
			Expect(mr.Exists(k.String())).To(BeFalse())
		})

		It("drops the fill when the session was invalidated after the claim", func() {
			token, err := c.Reserve(ctx, k)
			Expect(err).NotTo(HaveOccurred())
			_, err = c.Invalidate(ctx, "s1")
			Expect(err).NotTo(HaveOccurred())

			stored, err := c.Fill(ctx, k, token, []string{"stale"}, cache.TierHot)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored).To(BeFalse())
		})

		It("lets only one reader claim a key", func() {
			first, err := c.Reserve(ctx, k)
			Expect(err).NotTo(HaveOccurred())
			second, err := c.Reserve(ctx, k)
			Expect(err).NotTo(HaveOccurred())
			Expect(first).NotTo(BeEmpty())
			Expect(second).To(BeEmpty())

			stored, err := c.Fill(ctx, k, second, []string{"x"}, cache.TierHot)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored).To(BeFalse())
		})

		It("does not claim a key that holds a value", func() {
			Expect(c.Put(ctx, k, []string{"x"}, cache.TierHot)).To(Succeed())
			token, err := c.Reserve(ctx, k)
			Expect(err).NotTo(HaveOccurred())
			Expect(token).To(BeEmpty())
		})

		It("lets a claim lapse", func() {
			_, err := c.Reserve(ctx, k)
			Expect(err).NotTo(HaveOccurred())
			mr.FastForward(cache.DefaultConfig().FillTimeout + time.Second)
			Expect(mr.Exists(k.String())).To(BeFalse())
		})
	})

	Describe("Optimize", func() {
		var (
			popular = cache.NewKey(cache.CategoryMessages, "s1")
			steady  = cache.NewKey(cache.CategoryContext, "s1", "ctx")
			idle    = cache.NewKey(cache.CategorySession, "s1")
			forever = "cache:analysis:s1:legacy"
		)

		hit := func(k cache.Key, n int) {
			for range n {
				_, ok, err := c.Get(ctx, k)
				Expect(err).NotTo(HaveOccurred())
				Expect(ok).To(BeTrue())
			}
		}

		BeforeEach(func() {
			Expect(c.Put(ctx, popular, "p", cache.TierCold)).To(Succeed())
			Expect(c.Put(ctx, steady, "s", cache.TierCold)).To(Succeed())
			Expect(c.Put(ctx, idle, "i", cache.TierHot)).To(Succeed())
			Expect(mr.Set(forever, "f")).To(Succeed())
			hit(popular, 9)
			hit(steady, 2)
		})

		It("retiers by access count without extending TTLs", func() {
			report, err := c.Optimize(ctx)
			Expect(err).NotTo(HaveOccurred())

			Expect(report.Scanned).To(Equal(4))
			Expect(mr.TTL(popular.String())).To(Equal(5 * time.Minute))
			Expect(mr.TTL(steady.String())).To(Equal(30 * time.Minute))
			Expect(mr.TTL(idle.String())).To(Equal(5*time.Minute), "demoted key keeps its shorter TTL")
			Expect(mr.TTL(forever)).To(Equal(2 * time.Hour))
			Expect(mr.Exists(idle.String())).To(BeTrue())

			Expect(report.Adjusted).To(Equal(3))
			Expect(report.Unchanged).To(Equal(1))
			Expect(report.Targets).To(HaveKeyWithValue(cache.TierHot, 1))
			Expect(report.Targets).To(HaveKeyWithValue(cache.TierWarm, 1))
			Expect(report.Targets).To(HaveKeyWithValue(cache.TierCold, 2))
		})

		It("resets counters and is idempotent", func() {
			_, err := c.Optimize(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(c.Accesses(popular)).To(BeZero())

			before := map[string]time.Duration{}
			for _, k := range mr.Keys() {
				before[k] = mr.TTL(k)
			}

			second, err := c.Optimize(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(second.Adjusted).To(BeZero())
			Expect(second.Unchanged).To(Equal(4))
			for _, k := range mr.Keys() {
				Expect(mr.TTL(k)).To(Equal(before[k]), k)
			}
			Expect(c.Stats().LastPass.Scanned).To(Equal(4))
		})

		It("keeps accesses to keys written after SCAN passed them", func() {
			late := cache.NewKey(cache.CategoryContext, "s9", "late")
			hooked := &hookedExecutor{Executor: m}
			c = cache.New(hooked, cache.DefaultConfig())
			hooked.after = map[string]func(){
				"cache optimize": func() {
					Expect(c.Put(ctx, late, "l", cache.TierWarm)).To(Succeed())
				},
			}

			_, err := c.Optimize(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(c.Accesses(late)).To(BeEquivalentTo(1))
		})

		It("does not block concurrent reads and writes", func() {
			var wg sync.WaitGroup
			for i := range 4 {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					for range 25 {
						if i%2 == 0 {
							_, _, _ = c.Get(ctx, popular)
						} else {
							_ = c.Put(ctx, steady, "s", cache.TierWarm)
						}
					}
				}()
			}
			_, err := c.Optimize(ctx)
			Expect(err).NotTo(HaveOccurred())
			wg.Wait()

			b, ok, err := c.Get(ctx, popular)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(string(b)).To(Equal(`"p"`))
		})
	})
})
