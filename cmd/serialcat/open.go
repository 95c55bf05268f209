//go:build linux

package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	serial "github.com/luhtfiimanal/go-async-serial"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type openFlags struct {
	profile  string
	baud     int
	dataBits int
	stopBits string
	parity   string
	flow     string
}

func newOpenCommand() *cobra.Command {
	return new(openFlags).command()
}

func (f *openFlags) command() *cobra.Command {
	command := &cobra.Command{
		Use:     "open <device>",
		Short:   "Copy stdin to the device and the device to stdout.",
		Example: "serialcat open /dev/ttyUSB0 --baud 9600 --parity even",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.config(cmd, args[0])
			if err != nil {
				return err
			}
			return runOpen(cfg)
		},
	}
	command.Flags().StringVarP(&f.profile, "config", "c", "", "YAML port profile")
	command.Flags().IntVarP(&f.baud, "baud", "b", 115200, "Baud rate")
	command.Flags().IntVar(&f.dataBits, "data-bits", 8, "Data bits [5-8]")
	command.Flags().StringVar(&f.stopBits, "stop-bits", "1", "Stop bits [possible values: 1, 1.5, 2]")
	command.Flags().StringVar(&f.parity, "parity", "none", "Parity [possible values: none, odd, even, mark, space]")
	command.Flags().StringVar(&f.flow, "flow", "none", "Flow control [possible values: none, software, hardware]")
	return command
}

// config loads the profile, if any, and lets explicitly set flags override it.
func (f *openFlags) config(cmd *cobra.Command, device string) (serial.Config, error) {
	cfg := serial.DefaultConfig()
	if f.profile != "" {
		var err error
		if cfg, err = serial.LoadConfig(f.profile); err != nil {
			return cfg, err
		}
	}
	cfg.Device = device
	flags := cmd.Flags()
	if flags.Changed("baud") || f.profile == "" {
		cfg.BaudRate = f.baud
	}
	if flags.Changed("data-bits") || f.profile == "" {
		cfg.DataBits = serial.DataBits(f.dataBits)
	}
	if flags.Changed("stop-bits") {
		if err := cfg.StopBits.UnmarshalText([]byte(f.stopBits)); err != nil {
			return cfg, err
		}
	}
	if flags.Changed("parity") {
		if err := cfg.Parity.UnmarshalText([]byte(f.parity)); err != nil {
			return cfg, err
		}
	}
	if flags.Changed("flow") {
		if err := cfg.FlowControl.UnmarshalText([]byte(f.flow)); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

func runOpen(cfg serial.Config) error {
	s, err := serial.Open(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	line, err := s.Configuration()
	if err != nil {
		return err
	}
	logrus.WithField("device", s.Name()).Info("opened ", line)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return bridge(ctx, s, os.Stdin, os.Stdout)
}

// bridge copies the stream to out until ctx is done or the stream fails.
// Input is copied on a detached goroutine since a read from a terminal
// cannot be interrupted.
func bridge(ctx context.Context, s *serial.Stream, in io.Reader, out io.Writer) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		buf := make([]byte, 4096)
		for {
			n, err := s.ReadContext(ctx, buf)
			if err != nil {
				return err
			}
			if _, err := out.Write(buf[:n]); err != nil {
				return err
			}
		}
	})
	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := in.Read(buf)
			if n > 0 {
				if _, werr := s.WriteContext(ctx, buf[:n]); werr != nil {
					return
				}
			}
			if err != nil {
				if err != io.EOF {
					logrus.WithError(err).Warn("stdin")
				}
				return
			}
		}
	}()
	err := g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, serial.ErrClosed) {
		return nil
	}
	return err
}
