package config_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/ephemera/pkg/config"
)

var _ = Describe("Configer config", func() {
	var tmpDir string

	writeConfig := func(data string) {
		Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)).To(Succeed())
	}

	newConfiger := func() *config.Configer {
		c, err := config.NewConfiger(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		return c
	}

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
	})

	Describe("LoadConfig", func() {
		It("returns default config when no config file exists", func() {
			cfg, err := newConfiger().LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg).To(Equal(config.NewDefaultConfig()))
		})

		It("loads all config sections", func() {
			writeConfig(`version = 0

[store]
host = "redis.internal"
port = 6380
db = 2
password = "hunter2"
socket_timeout = "2s"
health_check_interval = "10s"

[session]
message_ttl_hours = 48
max_messages = 200

[cache]
hot_ttl_seconds = 60
recent_window = 20

[memory]
warning_threshold = 60
critical_threshold = 80
emergency_threshold = 90

[events]
provider = "kafka"
brokers = "k1:9092,k2:9092"
topic = "chat.sessions"

[log]
debug = true
`)

			cfg, err := newConfiger().LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Store.Host).To(Equal("redis.internal"))
			Expect(cfg.Store.Port).To(Equal(6380))
			Expect(cfg.Store.DB).To(Equal(2))
			Expect(cfg.Store.Password).To(Equal("hunter2"))
			Expect(cfg.Store.SocketTimeout.Duration).To(Equal(2 * time.Second))
			Expect(cfg.Store.HealthCheckInterval.Duration).To(Equal(10 * time.Second))
			Expect(cfg.Session.MessageTTLHours).To(Equal(48))
			Expect(cfg.Session.MaxMessages).To(Equal(200))
			Expect(cfg.Cache.HotTTLSeconds).To(Equal(60))
			Expect(cfg.Cache.RecentWindow).To(Equal(20))
			Expect(cfg.Memory.WarningThreshold).To(Equal(60))
			Expect(cfg.Memory.EmergencyThreshold).To(Equal(90))
			Expect(cfg.Events.Provider).To(Equal(config.ProviderKafka))
			Expect(cfg.Events.BrokerList()).To(Equal([]string{"k1:9092", "k2:9092"}))
			Expect(cfg.Events.Topic).To(Equal("chat.sessions"))
			Expect(cfg.Log.Debug).To(BeTrue())
			Expect(cfg.Log.JSON).To(BeFalse())
		})

		It("fills in defaults for unset fields in a partial config", func() {
			writeConfig(`[store]
host = "redis.internal"
`)

			cfg, err := newConfiger().LoadConfig()
			Expect(err).NotTo(HaveOccurred())

			defaults := config.NewDefaultConfig()
			Expect(cfg.Store.Host).To(Equal("redis.internal"))
			Expect(cfg.Store.Port).To(Equal(defaults.Store.Port))
			Expect(cfg.Store.RetryBackoff).To(Equal(defaults.Store.RetryBackoff))
			Expect(cfg.Session).To(Equal(defaults.Session))
			Expect(cfg.Cache).To(Equal(defaults.Cache))
			Expect(cfg.Events).To(Equal(defaults.Events))
		})

		It("returns error for malformed TOML", func() {
			writeConfig("not valid toml [[[")

			cfg, err := newConfiger().LoadConfig()
			Expect(err).To(HaveOccurred())
			Expect(cfg).To(BeNil())
		})

		It("returns error for a malformed duration", func() {
			writeConfig(`[store]
socket_timeout = "soon"
`)

			_, err := newConfiger().LoadConfig()
			Expect(err).To(MatchError(ContainSubstring("parsing config TOML")))
		})

		It("returns error for unsupported config version", func() {
			writeConfig("version = 99\n")

			cfg, err := newConfiger().LoadConfig()
			Expect(err).To(MatchError(ContainSubstring("unsupported config version")))
			Expect(cfg).To(BeNil())
		})
	})

	Describe("SaveConfig", func() {
		It("persists config to disk owner-readable only", func() {
			c := newConfiger()
			cfg := config.NewDefaultConfig()
			cfg.Store.Password = "hunter2"
			cfg.Cache.OptimizeInterval = config.D(5 * time.Minute)
			Expect(c.SaveConfig(cfg)).To(Succeed())

			info, err := os.Stat(filepath.Join(tmpDir, "config.toml"))
			Expect(err).NotTo(HaveOccurred())
			Expect(info.Mode().Perm()).To(Equal(os.FileMode(0o600)))

			loaded, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(Equal(cfg))
		})

		It("writes durations as readable strings", func() {
			c := newConfiger()
			Expect(c.SaveConfig(config.NewDefaultConfig())).To(Succeed())

			data, err := os.ReadFile(c.GetTarget())
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(ContainSubstring(`health_check_interval = "30s"`))
		})

		It("returns error for nil config", func() {
			Expect(newConfiger().SaveConfig(nil)).To(MatchError("cannot save nil config"))
		})
	})

	Describe("SetConfigValue", func() {
		It("sets keys of every kind", func() {
			c := newConfiger()
			Expect(c.SetConfigValue("store.host", "redis.internal")).To(Succeed())
			Expect(c.SetConfigValue("store.port", "6380")).To(Succeed())
			Expect(c.SetConfigValue("store.retry_backoff", "250ms")).To(Succeed())
			Expect(c.SetConfigValue("log.json", "true")).To(Succeed())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Store.Host).To(Equal("redis.internal"))
			Expect(cfg.Store.Port).To(Equal(6380))
			Expect(cfg.Store.RetryBackoff.Duration).To(Equal(250 * time.Millisecond))
			Expect(cfg.Log.JSON).To(BeTrue())
		})

		It("preserves existing values when setting a new key", func() {
			c := newConfiger()
			Expect(c.SetConfigValue("store.host", "redis.internal")).To(Succeed())
			Expect(c.SetConfigValue("events.topic", "chat.sessions")).To(Succeed())

			Expect(c.GetConfigValue("store.host")).To(Equal("redis.internal"))
			Expect(c.GetConfigValue("events.topic")).To(Equal("chat.sessions"))
		})

		It("returns error for unknown key", func() {
			err := newConfiger().SetConfigValue("proxy.listen", ":8080")
			Expect(err).To(MatchError(ContainSubstring("unknown config key")))
		})

		DescribeTable("rejects unparseable values",
			func(key, value string) {
				err := newConfiger().SetConfigValue(key, value)
				Expect(err).To(MatchError(ContainSubstring("invalid value for " + key)))
			},
			Entry("int", "store.port", "abc"),
			Entry("duration", "memory.check_interval", "often"),
			Entry("bool", "log.debug", "maybe"),
		)

		It("rejects a value that fails validation and leaves the file alone", func() {
			c := newConfiger()
			err := c.SetConfigValue("memory.warning_threshold", "90")
			Expect(err).To(MatchError(ContainSubstring("memory thresholds")))

			_, err = os.Stat(c.GetTarget())
			Expect(os.IsNotExist(err)).To(BeTrue())
		})
	})

	Describe("GetConfigValue", func() {
		It("returns default values when no config file exists", func() {
			c := newConfiger()
			Expect(c.GetConfigValue("store.port")).To(Equal("6379"))
			Expect(c.GetConfigValue("store.health_check_interval")).To(Equal("30s"))
			Expect(c.GetConfigValue("events.provider")).To(Equal("nop"))
			Expect(c.GetConfigValue("log.debug")).To(Equal("false"))
		})

		It("returns empty string for key with no default", func() {
			Expect(newConfiger().GetConfigValue("store.password")).To(BeEmpty())
		})

		It("returns error for unknown key", func() {
			_, err := newConfiger().GetConfigValue("nonexistent.key")
			Expect(err).To(MatchError(ContainSubstring("unknown config key")))
		})
	})
})

var _ = Describe("ValidConfigKeys", func() {
	It("starts with the store section and ends with the log section", func() {
		keys := config.ValidConfigKeys()
		Expect(keys[0]).To(Equal("store.host"))
		Expect(keys[len(keys)-1]).To(Equal("log.json"))
	})

	It("returns every key exactly once", func() {
		keys := config.ValidConfigKeys()
		seen := map[string]bool{}
		for _, k := range keys {
			Expect(seen).NotTo(HaveKey(k))
			seen[k] = true
			Expect(config.IsValidConfigKey(k)).To(BeTrue())
		}
		Expect(keys).To(ContainElements("cache.recent_window", "memory.cleanup_concurrency", "events.brokers"))
	})

	It("returns keys in stable order", func() {
		Expect(config.ValidConfigKeys()).To(Equal(config.ValidConfigKeys()))
	})

	It("rejects invalid keys", func() {
		Expect(config.IsValidConfigKey("store")).To(BeFalse())
		Expect(config.IsValidConfigKey("storage.sqlite_path")).To(BeFalse())
	})
})

var _ = Describe("ParseConfigTOML", func() {
	It("returns empty config for empty input", func() {
		cfg, err := config.ParseConfigTOML([]byte(""))
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Store.Host).To(BeEmpty())
	})

	It("rejects unsupported config version", func() {
		_, err := config.ParseConfigTOML([]byte("version = 2\n"))
		Expect(err).To(MatchError(ContainSubstring("unsupported config version 2")))
	})
})

var _ = Describe("NewDefaultConfig", func() {
	It("returns fully-populated defaults that validate", func() {
		cfg := config.NewDefaultConfig()
		Expect(cfg.Store.Host).To(Equal("localhost"))
		Expect(cfg.Store.MaxConnections).To(Equal(20))
		Expect(cfg.Session.MaxMessages).To(Equal(1000))
		Expect(cfg.Cache.ColdTTLSeconds).To(Equal(7200))
		Expect(cfg.Memory.CleanupInterval.Duration).To(Equal(time.Hour))
		Expect(cfg.Events.Topic).To(Equal("ephemera.sessions"))
		Expect(config.Validate(cfg)).To(Succeed())
	})
})
