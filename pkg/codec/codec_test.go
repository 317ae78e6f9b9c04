package codec_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/ephemera/pkg/codec"
)

var _ = Describe("JSON", func() {
	It("wraps decode failures", func() {
		var out map[string]string
		err := codec.JSON{}.Unmarshal([]byte("{not json"), &out)
		Expect(err).To(MatchError(ContainSubstring("json decode")))
	})

	It("rejects values json cannot encode", func() {
		_, err := codec.JSON{}.Marshal(make(chan int))
		Expect(err).To(MatchError(ContainSubstring("json encode")))
	})
})
