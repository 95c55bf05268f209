//go:build linux

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	serial "github.com/luhtfiimanal/go-async-serial"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newLoopbackCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "loopback",
		Short: "Create a pseudo-terminal that echoes everything written to it.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			master, slave, err := serial.Pair()
			if err != nil {
				return err
			}
			defer master.Close()
			peer := slave.Name()
			// The slave stays open so the line settings survive until a
			// client opens the path.
			defer slave.Close()
			fmt.Fprintln(cmd.OutOrStdout(), peer)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return echo(ctx, master)
		},
	}
}

func echo(ctx context.Context, s *serial.Stream) error {
	buf := make([]byte, 4096)
	for {
		n, err := s.ReadContext(ctx, buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		logrus.WithField("bytes", n).Debug("echo")
		if _, err := s.WriteContext(ctx, buf[:n]); err != nil {
			return err
		}
	}
}
