package cmd

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/manifoldco/promptui"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	miditip "github.com/rapidmidiex/miditip/internal"
	"github.com/rapidmidiex/miditip/internal/client"
	"github.com/rapidmidiex/miditip/internal/cmd/config"
	"github.com/rapidmidiex/miditip/internal/device"
	"github.com/rapidmidiex/miditip/internal/websocket"
	"github.com/rapidmidiex/miditip/ui/terminal/tui"
)

func runClient(cCtx *cli.Context) error {
	cfg, err := clientConfig(cCtx)
	if err != nil {
		return err
	}

	dev, withTUI := cCtx.Bool("dev"), cCtx.Bool("tui")

	log := newLogger(dev)
	if withTUI {
		var closeLog func() error
		if log, closeLog, err = fileLogger(cCtx.String("log"), dev); err != nil {
			return err
		}
		defer closeLog()
	}

	if err := chooseDevices(&cfg); err != nil {
		return err
	}

	if path := cCtx.String("save"); path != "" {
		c := config.Config{Client: cfg}
		if err := c.WriteClient(path); err != nil {
			return err
		}
		log.Info().Str("path", path).Msg("client settings saved")
	}

	in, out, err := device.Open(cfg.In, cfg.Out, log)
	if err != nil {
		return err
	}
	defer device.Close()
	defer out.Close()
	if in != nil {
		defer in.Close()
	}

	sCtx, cancel := signal.NotifyContext(
		cCtx.Context,
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)
	defer cancel()

	udp, err := net.ListenPacket("udp", cfg.UDP)
	if err != nil {
		return errors.Wrapf(err, "listen %s", cfg.UDP)
	}

	opts := []client.Option{
		client.WithLogger(log),
		client.WithBatch(cfg.Batch, cfg.BatchInterval),
		client.WithResendAfter(cfg.ResendAfter),
	}

	var status chan client.Status
	if withTUI {
		status = make(chan client.Status, 1)
		opts = append(opts, client.WithStatus(status))
	}

	c, err := join(sCtx, cfg, udp, opts...)
	if err != nil {
		udp.Close()
		return err
	}

	g, gCtx := errgroup.WithContext(sCtx)

	var notes chan miditip.MidiEvent
	if withTUI || in != nil {
		notes = make(chan miditip.MidiEvent, 256)
	}

	if in != nil {
		g.Go(func() error { return forward(gCtx, in.Events(), notes) })
	}

	g.Go(func() error {
		// status has a single writer, so it is closed once the client stops
		if status != nil {
			defer close(status)
		}
		return c.Run(gCtx, notes, out)
	})

	if withTUI {
		ctx, stop := context.WithCancel(gCtx)
		defer stop()

		g.Go(func() error {
			// quitting the UI ends the session
			defer cancel()
			return tui.Run(ctx, status, notes)
		})
	}

	return g.Wait()
}

// join connects over WebSocket when an URL is configured, over TCP otherwise.
func join(ctx context.Context, cfg config.ClientConfig, udp net.PacketConn, opts ...client.Option) (*client.Client, error) {
	if cfg.WS == "" {
		return client.Dial(ctx, cfg.Server, udp, opts...)
	}

	st, err := websocket.Dial(ctx, cfg.WS)
	if err != nil {
		return nil, err
	}
	return client.Join(st, udp, opts...)
}

// forward copies the local instrument into the client's input. A closed
// instrument is not an error: the client keeps listening.
func forward(ctx context.Context, from <-chan miditip.MidiEvent, to chan<- miditip.MidiEvent) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-from:
			if !ok {
				return nil
			}
			select {
			case to <- e:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// chooseDevices asks for the ports left unset when a terminal is attached.
func chooseDevices(cfg *config.ClientConfig) error {
	if cfg.In != "" && cfg.Out != "" {
		return nil
	}

	ports, err := device.List()
	if errors.Is(err, device.ErrNoDriver) || !term.IsTerminal(int(os.Stdin.Fd())) {
		if cfg.Out == "" {
			cfg.Out = device.NullName
		}
		return nil
	}
	if err != nil {
		return err
	}

	if cfg.In == "" {
		if cfg.In, err = selectPort("MIDI input", ports.In); err != nil {
			return err
		}
	}

	if cfg.Out == "" {
		if cfg.Out, err = selectPort("MIDI output", ports.Out); err != nil {
			return err
		}
	}

	return nil
}

func selectPort(label string, ports []device.Port) (string, error) {
	items := append([]device.Port{{Number: -1, Name: device.NullName}}, ports...)

	prompt := promptui.Select{
		Label: label,
		Items: items,
		Templates: &promptui.SelectTemplates{
			Label:    "{{ . }}",
			Active:   "▸ {{ .Name | cyan }}",
			Inactive: "  {{ .Name }}",
			Selected: "{{ .Name | bold }}",
		},
	}

	i, _, err := prompt.Run()
	if err != nil {
		return "", err
	}

	if items[i].Number < 0 {
		return device.NullName, nil
	}
	return items[i].Name, nil
}
