package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func newPruneCmd(o *options) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Forget saved scroll positions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := o.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			n, err := st.Prune(time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pruned %d feed positions\n", n)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", positionTTL, "Drop positions not saved within this long")
	return cmd
}

func newConfigCmd(o *options) *cobra.Command {
	var initFile bool
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if initFile {
				if _, err := os.Stat(o.path()); err == nil {
					return fmt.Errorf("%s already exists", o.path())
				}
				cfg, err := o.loadConfig(cmd)
				if err != nil {
					return err
				}
				if err := cfg.SaveTo(o.path()); err != nil {
					return fmt.Errorf("write config: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", o.path())
				return nil
			}

			cfg, err := o.loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Server.Token != "" {
				cfg.Server.Token = "********"
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(cfg)
		},
	}
	cmd.Flags().BoolVar(&initFile, "init", false, "Write the configuration to the config path")
	return cmd
}
