package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/suhasHere/moqbridge/config"
)

func newConfigCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Validate the configuration and print the record handed to engines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(o.configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			rec, err := cfg.Marshal()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, f := range rec.Fields {
				fmt.Fprintf(out, "%-8s %s\n", f.Kind, f)
			}
			fmt.Fprintf(out, "encoded: %d bytes, shutdown wait %s\n", len(rec.Encode()), cfg.ShutdownWait())
			return nil
		},
	}
}
