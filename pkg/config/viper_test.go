package config_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/ephemera/pkg/config"
)

var _ = Describe("InitViper", func() {
	var tmpDir string

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
	})

	It("returns viper with defaults when no config file exists", func() {
		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		Expect(v.GetString("store.host")).To(Equal("localhost"))
		Expect(v.GetInt("store.port")).To(Equal(6379))
		Expect(v.GetDuration("store.retry_backoff")).To(Equal(time.Second))
		Expect(v.GetString("events.provider")).To(Equal("nop"))
	})

	It("reads config file values over defaults", func() {
		data := `[store]
host = "redis.internal"
`
		Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)).To(Succeed())

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(v.GetString("store.host")).To(Equal("redis.internal"))
		Expect(v.GetInt("store.port")).To(Equal(6379))
	})

	It("env vars take precedence over config file values", func() {
		data := `[store]
host = "redis.internal"
`
		Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)).To(Succeed())
		GinkgoT().Setenv("EPHEMERA_STORE_HOST", "redis.env")

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(v.GetString("store.host")).To(Equal("redis.env"))
	})
})

var _ = Describe("FromViper", func() {
	var tmpDir string

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
	})

	It("resolves defaults, file, and env into a Config", func() {
		data := `[cache]
recent_window = 25

[memory]
check_interval = "15s"
`
		Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)).To(Succeed())
		GinkgoT().Setenv("EPHEMERA_STORE_DB", "3")

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		cfg, err := config.FromViper(v)
		Expect(err).NotTo(HaveOccurred())

		Expect(cfg.Cache.RecentWindow).To(Equal(25))
		Expect(cfg.Memory.CheckInterval.Duration).To(Equal(15 * time.Second))
		Expect(cfg.Store.DB).To(Equal(3))
		Expect(cfg.Store.Host).To(Equal("localhost"))
	})

	It("rejects an invalid result", func() {
		GinkgoT().Setenv("EPHEMERA_EVENTS_PROVIDER", "nats")

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		_, err = config.FromViper(v)
		Expect(err).To(MatchError(ContainSubstring("invalid config")))
	})
})

var _ = Describe("BindFlags", func() {
	var tmpDir string

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
	})

	It("lets an explicit flag win", func() {
		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cmd := &cobra.Command{Use: "test"}
		config.AddFlags(cmd, config.StoreFlags)
		Expect(cmd.Flags().Set("redis-host", "redis.flag")).To(Succeed())
		Expect(config.BindFlags(v, cmd, config.StoreFlags)).To(Succeed())

		Expect(v.GetString("store.host")).To(Equal("redis.flag"))
	})

	It("falls through to the config file when the flag is not set", func() {
		data := `[store]
port = 6390
`
		Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)).To(Succeed())

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cmd := &cobra.Command{Use: "test"}
		config.AddFlags(cmd, config.StoreFlags)
		Expect(config.BindFlags(v, cmd, config.StoreFlags)).To(Succeed())

		Expect(v.GetInt("store.port")).To(Equal(6390))
	})

	It("skips flags the command never declared", func() {
		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cmd := &cobra.Command{Use: "test"}
		Expect(config.BindFlags(v, cmd, config.StoreFlags)).To(Succeed())

		Expect(v.GetString("store.host")).To(Equal("localhost"))
	})

	It("takes shorthand, usage, and defaults from the definitions", func() {
		cmd := &cobra.Command{Use: "test"}
		config.AddFlags(cmd, config.StoreFlags)

		port := cmd.Flags().Lookup("redis-port")
		Expect(port).NotTo(BeNil())
		Expect(port.Shorthand).To(Equal("p"))
		Expect(port.Usage).To(Equal("Redis port"))
		Expect(port.DefValue).To(Equal("6379"))
		Expect(port.Value.Type()).To(Equal("int"))

		Expect(cmd.Flags().Lookup("events-provider").DefValue).To(Equal("nop"))
	})

	It("panics on a flag naming an unknown key", func() {
		cmd := &cobra.Command{Use: "test"}
		Expect(func() {
			config.AddFlags(cmd, []config.Flag{{Name: "bogus", Key: "store.bogus"}})
		}).To(Panic())
	})
})
