package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyphengolang/prelude/testing/is"
)

func TestLoadFromEnv(t *testing.T) {
	is := is.New(t)

	t.Setenv(EnvAddr, ":7000")
	t.Setenv(EnvTick, "250ms")
	t.Setenv(EnvQueue, "16")
	t.Setenv(EnvOrigins, "http://localhost:3000,http://127.0.0.1:3000")
	t.Setenv(EnvDev, "true")

	c, err := LoadFromEnv()
	is.NoErr(err)
	is.Equal(c.Server.Addr, ":7000")
	is.Equal(c.Server.Tick, 250*time.Millisecond)
	is.Equal(c.Server.Queue, 16)
	is.Equal(len(c.Server.Origins), 2)
	is.True(c.Dev)
	is.Equal(c.Server.HTTP, ":9001")            // default kept
	is.Equal(c.Client.Server, "127.0.0.1:9000") // default kept
}

func TestLoadFromEnvInvalid(t *testing.T) {
	is := is.New(t)

	t.Setenv(EnvBatch, "many")
	_, err := LoadFromEnv()
	is.True(err != nil) // not a number
}

func TestLoadFiles(t *testing.T) {
	is := is.New(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "miditip.env")
	is.NoErr(os.WriteFile(path, []byte("MIDITIP_IN=Keystation\nMIDITIP_OUT=null\n"), 0o600))

	t.Setenv(EnvIn, "")
	t.Setenv(EnvOut, "Synth")
	os.Unsetenv(EnvIn)

	is.NoErr(Load(filepath.Join(dir, "missing.env"), path)) // missing files are skipped

	c, err := LoadFromEnv()
	is.NoErr(err)
	is.Equal(c.Client.In, "Keystation") // from the file
	is.Equal(c.Client.Out, "Synth")     // environment wins over the file
}

func TestWriteClient(t *testing.T) {
	is := is.New(t)

	c := Default()
	c.Client.Server = "10.0.0.1:9000"
	c.Client.In = "Keystation 49"
	c.Client.Out = "null"

	path := filepath.Join(t.TempDir(), "miditip.env")
	is.NoErr(c.WriteClient(path))

	for _, k := range []string{EnvServer, EnvUDP, EnvIn, EnvOut, EnvBatch, EnvBatchWindow, EnvResendAfter} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	is.NoErr(Load(path))

	got, err := LoadFromEnv()
	is.NoErr(err)
	is.Equal(got.Client, c.Client)
}
