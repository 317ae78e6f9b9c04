package eventstream_test

import (
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/ephemera/pkg/eventstream"
)

var _ = Describe("SessionEvent", func() {
	It("stamps identity, type and time", func() {
		at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))
		a := eventstream.NewSessionEvent("s1", eventstream.ReasonEvicted, at)
		b := eventstream.NewSessionEvent("s1", eventstream.ReasonEvicted, at)

		Expect(a.EventType).To(Equal("ephemera.session.evicted"))
		Expect(a.SchemaVersion).To(Equal(eventstream.SchemaVersionV1))
		Expect(a.EmittedAt.Location()).To(Equal(time.UTC))
		Expect(a.EventID).NotTo(BeEmpty())
		Expect(a.EventID).NotTo(Equal(b.EventID))
	})

	It("marshals with snake_case keys", func() {
		ev := eventstream.NewSessionEvent("s1", eventstream.ReasonEnded, time.Now())
		ev.MessageCount = 4
		payload, err := json.Marshal(ev)
		Expect(err).NotTo(HaveOccurred())

		var got map[string]any
		Expect(json.Unmarshal(payload, &got)).To(Succeed())
		Expect(got).To(HaveKeyWithValue("session_id", "s1"))
		Expect(got).To(HaveKeyWithValue("reason", "ended"))
		Expect(got).To(HaveKeyWithValue("message_count", BeNumerically("==", 4)))
		Expect(got).To(HaveKey("freed_bytes"))
	})
})
