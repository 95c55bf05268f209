//go:build linux

package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var verbose bool

func main() {
	command := &cobra.Command{
		Use:   "serialcat",
		Short: "Bridge a serial port to stdin/stdout.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			}
		},
	}
	command.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose mode")
	command.AddCommand(newOpenCommand(), newLoopbackCommand())
	if err := command.Execute(); err != nil {
		logrus.Fatal(err)
	}
}
