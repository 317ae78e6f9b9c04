package logtail_test

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/gbytes"

	"github.com/papercomputeco/ephemera/pkg/logtail"
)

var _ = Describe("logtail", func() {
	var path string

	write := func(data string) {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		Expect(err).NotTo(HaveOccurred())
		_, err = f.WriteString(data)
		Expect(err).NotTo(HaveOccurred())
		Expect(f.Close()).To(Succeed())
	}

	BeforeEach(func() {
		path = filepath.Join(GinkgoT().TempDir(), "ephemera.log")
	})

	Describe("Last", func() {
		BeforeEach(func() {
			write("one\ntwo\nthree\nfour\n")
		})

		It("returns the final lines", func() {
			Expect(logtail.Last(path, 2)).To(Equal([]string{"three", "four"}))
		})

		It("returns everything when asked for more than exists", func() {
			Expect(logtail.Last(path, 10)).To(Equal([]string{"one", "two", "three", "four"}))
		})

		It("returns everything for a non-positive count", func() {
			Expect(logtail.Last(path, 0)).To(HaveLen(4))
		})

		It("fails for a missing file", func() {
			_, err := logtail.Last(filepath.Join(filepath.Dir(path), "missing.log"), 5)
			Expect(err).To(MatchError(ContainSubstring("opening log")))
		})
	})

	Describe("Follow", func() {
		var (
			out    *gbytes.Buffer
			cancel context.CancelFunc
			done   chan error
		)

		BeforeEach(func() {
			write("before follow\n")
			out = gbytes.NewBuffer()
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			done = make(chan error, 1)
			go func() {
				defer GinkgoRecover()
				done <- logtail.Follow(ctx, path, out)
			}()
			DeferCleanup(func() {
				cancel()
				Eventually(done).Should(Receive(BeNil()))
			})
		})

		It("streams appended lines only", func() {
			Eventually(func() string {
				write("cleanup finished\n")
				return string(out.Contents())
			}).Should(ContainSubstring("cleanup finished"))
			Expect(string(out.Contents())).NotTo(ContainSubstring("before follow"))
		})

		It("starts over after truncation", func() {
			Eventually(func() string {
				write("first\n")
				return string(out.Contents())
			}).Should(ContainSubstring("first"))

			Expect(os.Truncate(path, 0)).To(Succeed())
			Eventually(func() string {
				write("after truncate\n")
				return string(out.Contents())
			}).Should(ContainSubstring("after truncate"))
		})
	})
})
