package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/ephemera/pkg/logger"
)

func decodeLine(buf *bytes.Buffer) map[string]any {
	var parsed map[string]any
	ExpectWithOffset(1, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &parsed)).To(Succeed())
	return parsed
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

var _ = Describe("Logger", func() {
	Describe("New", func() {
		It("writes text records by default", func() {
			var buf bytes.Buffer
			l := logger.New(logger.WithWriter(&buf))
			l.Info("session appended", "session_id", "s1")

			Expect(buf.String()).To(ContainSubstring("session appended"))
			Expect(buf.String()).To(ContainSubstring("session_id=s1"))
		})

		It("drops debug records unless debug is on", func() {
			var quiet, loud bytes.Buffer
			logger.New(logger.WithWriter(&quiet)).Debug("hidden")
			logger.New(logger.WithWriter(&loud), logger.WithDebug(true)).Debug("shown")

			Expect(quiet.String()).To(BeEmpty())
			Expect(loud.String()).To(ContainSubstring("shown"))
		})

		It("honours an explicit level", func() {
			var buf bytes.Buffer
			l := logger.New(logger.WithWriter(&buf), logger.WithLevel(slog.LevelWarn))
			l.Info("skipped")
			l.Warn("kept")

			Expect(buf.String()).NotTo(ContainSubstring("skipped"))
			Expect(buf.String()).To(ContainSubstring("kept"))
		})

		It("emits JSON when asked, even with pretty set", func() {
			var buf bytes.Buffer
			l := logger.New(logger.WithWriter(&buf), logger.WithPretty(true), logger.WithJSON(true))
			l.Info("cleanup finished", "deleted", 3)

			parsed := decodeLine(&buf)
			Expect(parsed["msg"]).To(Equal("cleanup finished"))
			Expect(parsed["deleted"]).To(BeNumerically("==", 3))
		})

		It("renders pretty output", func() {
			var buf bytes.Buffer
			logger.New(logger.WithWriter(&buf), logger.WithPretty(true)).Info("pretty output")

			Expect(buf.String()).To(ContainSubstring("pretty output"))
		})

		It("fans out to several writers", func() {
			var a, b bytes.Buffer
			logger.New(logger.WithWriter(&a, &b)).Info("both")

			Expect(a.String()).To(ContainSubstring("both"))
			Expect(b.String()).To(ContainSubstring("both"))
		})
	})

	Describe("Nop", func() {
		It("is disabled at every level", func() {
			l := logger.Nop()
			Expect(l.Handler().Enabled(context.Background(), slog.LevelError)).To(BeFalse())
			Expect(func() {
				l.With("k", "v").WithGroup("g").Error("msg")
			}).NotTo(Panic())
		})
	})

	Describe("Multi", func() {
		It("dispatches to every logger", func() {
			var a, b bytes.Buffer
			multi := logger.Multi(logger.New(logger.WithWriter(&a)), logger.New(logger.WithWriter(&b), logger.WithJSON(true)))
			multi.Info("broadcast")

			Expect(a.String()).To(ContainSubstring("broadcast"))
			Expect(decodeLine(&b)["msg"]).To(Equal("broadcast"))
		})

		It("skips nil loggers and keeps writing after a failing handler", func() {
			var buf bytes.Buffer
			multi := logger.Multi(nil, logger.New(logger.WithWriter(failingWriter{})), logger.New(logger.WithWriter(&buf)))
			multi.Info("still delivered")

			Expect(buf.String()).To(ContainSubstring("still delivered"))
		})

		It("carries attrs and groups into children", func() {
			var buf bytes.Buffer
			multi := logger.Multi(logger.New(logger.WithWriter(&buf), logger.WithJSON(true)))
			multi.With("component", "pressure").WithGroup("sample").Info("tick", "ratio", 0.5)

			parsed := decodeLine(&buf)
			Expect(parsed["component"]).To(Equal("pressure"))
			group, ok := parsed["sample"].(map[string]any)
			Expect(ok).To(BeTrue())
			Expect(group["ratio"]).To(BeNumerically("==", 0.5))
		})
	})
})
