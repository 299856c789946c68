// Package config holds the settings of the miditip commands. Values come from
// the environment, which may be seeded from env files, and are then
// overridden by command line flags.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// DefaultFiles are the env files read when none are named.
var DefaultFiles = []string{"miditip.env", ".env"}

const (
	EnvAddr        = "MIDITIP_ADDR"
	EnvHTTP        = "MIDITIP_HTTP"
	EnvTick        = "MIDITIP_TICK"
	EnvHandshake   = "MIDITIP_HANDSHAKE"
	EnvQueue       = "MIDITIP_QUEUE"
	EnvOrigins     = "MIDITIP_ORIGINS"
	EnvServer      = "MIDITIP_SERVER"
	EnvWS          = "MIDITIP_WS"
	EnvUDP         = "MIDITIP_UDP"
	EnvIn          = "MIDITIP_IN"
	EnvOut         = "MIDITIP_OUT"
	EnvBatch       = "MIDITIP_BATCH"
	EnvBatchWindow = "MIDITIP_BATCH_INTERVAL"
	EnvResendAfter = "MIDITIP_RESEND_AFTER"
	EnvDev         = "MIDITIP_DEV"
)

type ServerConfig struct {
	Addr      string
	HTTP      string
	Tick      time.Duration
	Handshake time.Duration
	Queue     int
	Origins   []string
}

type ClientConfig struct {
	Server        string
	WS            string
	UDP           string
	In            string
	Out           string
	Batch         int
	BatchInterval time.Duration
	ResendAfter   int
}

type Config struct {
	Server ServerConfig
	Client ClientConfig
	Dev    bool
}

// Default returns the settings used when nothing is configured.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:      ":9000",
			HTTP:      ":9001",
			Tick:      100 * time.Millisecond,
			Handshake: 2 * time.Second,
			Queue:     64,
		},
		Client: ClientConfig{
			Server:        "127.0.0.1:9000",
			UDP:           ":0",
			Batch:         32,
			BatchInterval: 10 * time.Millisecond,
			ResendAfter:   2,
		},
	}
}

// Load reads the env files into the process environment without overriding
// variables that are already set. Missing files are skipped.
func Load(files ...string) error {
	if len(files) == 0 {
		files = DefaultFiles
	}

	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return errors.Wrapf(err, "config: load %s", f)
		}
	}
	return nil
}

// LoadFromEnv returns the defaults overridden by the environment.
func LoadFromEnv() (*Config, error) {
	c := Default()

	readStr(EnvAddr, &c.Server.Addr)
	readStr(EnvHTTP, &c.Server.HTTP)
	if v, ok := os.LookupEnv(EnvOrigins); ok && v != "" {
		c.Server.Origins = strings.Split(v, ",")
	}
	readStr(EnvServer, &c.Client.Server)
	readStr(EnvWS, &c.Client.WS)
	readStr(EnvUDP, &c.Client.UDP)
	readStr(EnvIn, &c.Client.In)
	readStr(EnvOut, &c.Client.Out)

	for _, d := range []struct {
		key string
		v   *time.Duration
	}{
		{EnvTick, &c.Server.Tick},
		{EnvHandshake, &c.Server.Handshake},
		{EnvBatchWindow, &c.Client.BatchInterval},
	} {
		if err := readDuration(d.key, d.v); err != nil {
			return nil, err
		}
	}

	for _, n := range []struct {
		key string
		v   *int
	}{
		{EnvQueue, &c.Server.Queue},
		{EnvBatch, &c.Client.Batch},
		{EnvResendAfter, &c.Client.ResendAfter},
	} {
		if err := readInt(n.key, n.v); err != nil {
			return nil, err
		}
	}

	if err := readBool(EnvDev, &c.Dev); err != nil {
		return nil, err
	}

	return c, nil
}

// ClientEnv returns the client settings as env file entries.
func (c *Config) ClientEnv() map[string]string {
	env := map[string]string{
		EnvServer:      c.Client.Server,
		EnvUDP:         c.Client.UDP,
		EnvIn:          c.Client.In,
		EnvOut:         c.Client.Out,
		EnvBatch:       strconv.Itoa(c.Client.Batch),
		EnvBatchWindow: c.Client.BatchInterval.String(),
		EnvResendAfter: strconv.Itoa(c.Client.ResendAfter),
	}
	if c.Client.WS != "" {
		env[EnvWS] = c.Client.WS
	}
	return env
}

// WriteClient writes the client settings to an env file so that a later Load
// picks them up.
// NOTE: this overwrites the file
func (c *Config) WriteClient(path string) error {
	return errors.Wrapf(godotenv.Write(c.ClientEnv(), path), "config: write %s", path)
}

func readStr(key string, v *string) {
	if s, ok := os.LookupEnv(key); ok && s != "" {
		*v = s
	}
}

func readDuration(key string, v *time.Duration) error {
	s, ok := os.LookupEnv(key)
	if !ok || s == "" {
		return nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return errors.Wrapf(err, "config: %s", key)
	}
	*v = d
	return nil
}

func readInt(key string, v *int) error {
	s, ok := os.LookupEnv(key)
	if !ok || s == "" {
		return nil
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		return errors.Wrapf(err, "config: %s", key)
	}
	*v = n
	return nil
}

func readBool(key string, v *bool) error {
	s, ok := os.LookupEnv(key)
	if !ok || s == "" {
		return nil
	}

	b, err := strconv.ParseBool(s)
	if err != nil {
		return errors.Wrapf(err, "config: %s", key)
	}
	*v = b
	return nil
}
