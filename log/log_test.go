package log

import (
	"bytes"
	"os"
	"testing"

	"github.com/onsi/gomega"
	log "github.com/sirupsen/logrus"
)

// Helper function to capture log output
func captureOutput(fn func()) string {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	log.SetFormatter(&log.TextFormatter{
		DisableTimestamp: true,
		DisableColors:    true,
	})
	fn()
	log.SetOutput(os.Stderr)
	return buf.String()
}

func TestDebug(t *testing.T) {
	g := gomega.NewWithT(t)
	log.SetLevel(log.DebugLevel)
	output := captureOutput(func() {
		Debug("debug with %s and %d", "string", 42)
	})
	g.Expect(output).To(gomega.ContainSubstring("debug with string and 42"))
	g.Expect(output).To(gomega.ContainSubstring("level=debug"))
}

func TestInfo(t *testing.T) {
	g := gomega.NewWithT(t)
	log.SetLevel(log.InfoLevel)
	output := captureOutput(func() {
		Info("info message")
	})
	g.Expect(output).To(gomega.ContainSubstring("info message"))
	g.Expect(output).To(gomega.ContainSubstring("level=info"))
}

func TestLogLevels_Hierarchy(t *testing.T) {
	g := gomega.NewWithT(t)
	log.SetLevel(log.WarnLevel)

	g.Expect(captureOutput(func() { Debug("hidden debug") })).NotTo(gomega.ContainSubstring("hidden debug"))
	g.Expect(captureOutput(func() { Info("hidden info") })).NotTo(gomega.ContainSubstring("hidden info"))
	g.Expect(captureOutput(func() { Warn("warn shown") })).To(gomega.ContainSubstring("warn shown"))
	g.Expect(captureOutput(func() { Error("error shown") })).To(gomega.ContainSubstring("error shown"))
}

func TestSetLevel(t *testing.T) {
	g := gomega.NewWithT(t)

	SetLevel("DEBUG")
	g.Expect(IsDebug()).To(gomega.BeTrue())

	SetLevel("warn")
	g.Expect(log.GetLevel()).To(gomega.Equal(log.WarnLevel))

	captureOutput(func() { SetLevel("loud") })
	g.Expect(log.GetLevel()).To(gomega.Equal(log.InfoLevel))
}

func TestFields(t *testing.T) {
	g := gomega.NewWithT(t)
	log.SetLevel(log.InfoLevel)
	output := captureOutput(func() {
		Fields(map[string]any{"source": "t1"}).Info("pool opened in %dms", 12)
	})
	g.Expect(output).To(gomega.ContainSubstring("pool opened in 12ms"))
	g.Expect(output).To(gomega.ContainSubstring("source=t1"))
}
