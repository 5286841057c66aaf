package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/suhasHere/moqbridge/client"
	"github.com/suhasHere/moqbridge/engine"
)

type rootOptions struct {
	configPath string
	debug      bool

	// logger is built in PersistentPreRunE unless already set.
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	return newRootCmdWith(&rootOptions{})
}

func newRootCmdWith(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "moqbridge",
		Short:         "Drive a MoQ client engine from Go",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if o.logger == nil {
				var err error
				if o.debug {
					o.logger, err = zap.NewDevelopment()
				} else {
					o.logger, err = zap.NewProduction()
				}
				if err != nil {
					return fmt.Errorf("build logger: %w", err)
				}
			}
			engine.SetLogger(o.logger.Named("engine"))
			client.SetLogger(o.logger.Named("client"))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = o.logger.Sync()
		},
	}

	cmd.PersistentFlags().StringVarP(&o.configPath, "config", "c", "moqbridge.yaml", "client configuration file")
	cmd.PersistentFlags().BoolVar(&o.debug, "debug", false, "development logging; contract violations panic")

	cmd.AddCommand(newRunCmd(o), newConfigCmd(o))
	return cmd
}
