// Package cmd wires the miditip components into the command line.
package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
	"github.com/urfave/cli/v2/altsrc"

	"github.com/rapidmidiex/miditip/internal/cmd/config"
)

const Version = "v0.1.0"

var (
	ErrInvalidTick  = errors.New("tick must be positive")
	ErrInvalidQueue = errors.New("queue size must be positive")
	ErrInvalidBatch = errors.New("batch size must be positive")
)

func serverFlags(c *config.Config) []cli.Flag {
	return []cli.Flag{
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:    "addr",
			Value:   c.Server.Addr,
			Usage:   "TCP address peers connect to",
			Aliases: []string{"a"},
			EnvVars: []string{config.EnvAddr},
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:    "http",
			Value:   c.Server.HTTP,
			Usage:   "HTTP address for the WebSocket transport, status and metrics (empty disables)",
			EnvVars: []string{config.EnvHTTP},
		}),
		altsrc.NewDurationFlag(&cli.DurationFlag{
			Name:    "tick",
			Value:   c.Server.Tick,
			Usage:   "interval between state snapshots",
			Aliases: []string{"t"},
			EnvVars: []string{config.EnvTick},
		}),
		altsrc.NewDurationFlag(&cli.DurationFlag{
			Name:    "handshake",
			Value:   c.Server.Handshake,
			Usage:   "time a new connection has to send its ClientInit",
			EnvVars: []string{config.EnvHandshake},
		}),
		altsrc.NewIntFlag(&cli.IntFlag{
			Name:    "queue",
			Value:   c.Server.Queue,
			Usage:   "messages queued per peer before it is dropped as slow",
			EnvVars: []string{config.EnvQueue},
		}),
		altsrc.NewStringSliceFlag(&cli.StringSliceFlag{
			Name:    "origin",
			Value:   cli.NewStringSlice(c.Server.Origins...),
			Usage:   "allowed CORS origin for the HTTP API (repeatable)",
			EnvVars: []string{config.EnvOrigins},
		}),
		devFlag(c),
		loadFlag,
	}
}

func clientFlags(c *config.Config) []cli.Flag {
	return []cli.Flag{
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:    "server",
			Value:   c.Client.Server,
			Usage:   "TCP address of the rendezvous server",
			Aliases: []string{"s"},
			EnvVars: []string{config.EnvServer},
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:    "ws",
			Value:   c.Client.WS,
			Usage:   "join over WebSocket instead, ie: ws://host:9001/ws",
			EnvVars: []string{config.EnvWS},
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:    "udp",
			Value:   c.Client.UDP,
			Usage:   "local UDP address for peer datagrams",
			EnvVars: []string{config.EnvUDP},
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:    "in",
			Value:   c.Client.In,
			Usage:   "MIDI input port, by number or name (\"null\" for none)",
			Aliases: []string{"i"},
			EnvVars: []string{config.EnvIn},
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:    "out",
			Value:   c.Client.Out,
			Usage:   "MIDI output port, by number or name (\"null\" to discard)",
			Aliases: []string{"o"},
			EnvVars: []string{config.EnvOut},
		}),
		altsrc.NewIntFlag(&cli.IntFlag{
			Name:    "batch",
			Value:   c.Client.Batch,
			Usage:   "events reported to the server per batch",
			EnvVars: []string{config.EnvBatch},
		}),
		altsrc.NewDurationFlag(&cli.DurationFlag{
			Name:    "batch-interval",
			Value:   c.Client.BatchInterval,
			Usage:   "longest wait before a partial batch is reported",
			EnvVars: []string{config.EnvBatchWindow},
		}),
		altsrc.NewIntFlag(&cli.IntFlag{
			Name:    "resend-after",
			Value:   c.Client.ResendAfter,
			Usage:   "snapshots an event may go unconfirmed before it is reported again",
			EnvVars: []string{config.EnvResendAfter},
		}),
		&cli.BoolFlag{
			Name:  "tui",
			Usage: "show the session in a terminal UI",
		},
		&cli.StringFlag{
			Name:  "log",
			Usage: "write logs to this file (logs are discarded under --tui otherwise)",
		},
		&cli.StringFlag{
			Name:  "save",
			Usage: "write the client settings to this env file",
		},
		devFlag(c),
		loadFlag,
	}
}

func devFlag(c *config.Config) cli.Flag {
	return altsrc.NewBoolFlag(&cli.BoolFlag{
		Name:    "dev",
		Value:   c.Dev,
		Usage:   "debug logging",
		Aliases: []string{"d"},
		EnvVars: []string{config.EnvDev},
	})
}

var loadFlag = &cli.StringFlag{
	Name:    "load",
	Usage:   "read flag values from a YAML file",
	Aliases: []string{"l"},
}

// NewApp builds the command line application. c supplies the flag defaults.
func NewApp(c *config.Config) *cli.App {
	sf, cf := serverFlags(c), clientFlags(c)

	return &cli.App{
		Name:     "miditip",
		Usage:    "play MIDI together over the network",
		Version:  Version,
		Compiled: time.Now().UTC(),
		Commands: []*cli.Command{
			{
				Name:        "server",
				Category:    "run",
				Aliases:     []string{"s"},
				Description: "Runs the rendezvous server of a session.",
				Before:      altsrc.InitInputSourceWithContext(sf, altsrc.NewYamlSourceFromFlagFunc("load")),
				Action:      runServer,
				Flags:       sf,
			},
			{
				Name:        "client",
				Category:    "run",
				Aliases:     []string{"c"},
				Description: "Joins a session with local MIDI devices.",
				Before:      altsrc.InitInputSourceWithContext(cf, altsrc.NewYamlSourceFromFlagFunc("load")),
				Action:      runClient,
				Flags:       cf,
			},
			{
				Name:        "devices",
				Aliases:     []string{"ls"},
				Description: "Lists the MIDI ports.",
				Action:      listDevices,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Usage: "print as JSON"},
				},
			},
		},
	}
}

func serverConfig(cCtx *cli.Context) (config.ServerConfig, error) {
	c := config.ServerConfig{
		Addr:      cCtx.String("addr"),
		HTTP:      cCtx.String("http"),
		Tick:      cCtx.Duration("tick"),
		Handshake: cCtx.Duration("handshake"),
		Queue:     cCtx.Int("queue"),
		Origins:   cCtx.StringSlice("origin"),
	}

	switch {
	case c.Tick <= 0:
		return c, ErrInvalidTick
	case c.Queue <= 0:
		return c, ErrInvalidQueue
	}
	return c, nil
}

func clientConfig(cCtx *cli.Context) (config.ClientConfig, error) {
	c := config.ClientConfig{
		Server:        cCtx.String("server"),
		WS:            cCtx.String("ws"),
		UDP:           cCtx.String("udp"),
		In:            cCtx.String("in"),
		Out:           cCtx.String("out"),
		Batch:         cCtx.Int("batch"),
		BatchInterval: cCtx.Duration("batch-interval"),
		ResendAfter:   cCtx.Int("resend-after"),
	}

	if c.Batch <= 0 {
		return c, ErrInvalidBatch
	}
	if c.WS == "" && c.Server == "" {
		return c, fmt.Errorf("one of --server or --ws is required")
	}
	return c, nil
}
