package utils

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Build", func() {
	It("reports the stamped values on one line", func() {
		DeferCleanup(func(v, s, b string) { Version, Sha, Buildtime = v, s, b }, Version, Sha, Buildtime)
		Version, Sha, Buildtime = "v0.3.1", "abc123", "2026-10-01"

		Expect(Build()).To(Equal(BuildInfo{Version: "v0.3.1", Sha: "abc123", Buildtime: "2026-10-01"}))
		Expect(Build().String()).To(Equal("ephemera v0.3.1 (abc123, built 2026-10-01)"))
	})
})
