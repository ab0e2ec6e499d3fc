package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// configKeys lists the settings cnvx reads; config show falls back to them
// so defaults are visible before anything has been set.
var configKeys = []string{
	"workers",
	"sample.pattern",
	"copy_number.policy",
	"output.duckdb",
	"output.replace",
	"log.level",
}

func newConfigCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage cnvx configuration",
		Long:  "Show, get, or set configuration values. Config is stored in ~/.cnvx.yaml.",
		Example: `  cnvx config                                # show all config
  cnvx config set copy_number.policy reject  # reject multi-sample files
  cnvx config get workers                    # get a value`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd, v)
		},
	}

	cmd.AddCommand(newConfigSetCmd(v))
	cmd.AddCommand(newConfigGetCmd(v))

	return cmd
}

func newConfigSetCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigSet(cmd, v, args[0], args[1])
		},
	}
}

func newConfigGetCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigGet(cmd, v, args[0])
		},
	}
}

func runConfigShow(cmd *cobra.Command, v *viper.Viper) error {
	settings := make(map[string]any)
	for _, key := range configKeys {
		if val := v.Get(key); val != nil {
			settings[key] = val
		}
	}

	out, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if cfg := v.ConfigFileUsed(); cfg != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "# Config file: %s\n", cfg)
	}
	fmt.Fprint(cmd.OutOrStdout(), string(out))
	return nil
}

func runConfigSet(cmd *cobra.Command, v *viper.Viper, key, value string) error {
	if n, err := strconv.Atoi(value); err == nil {
		v.Set(key, n)
	} else {
		v.Set(key, value)
	}

	// Ensure config file exists
	cfgFile := v.ConfigFileUsed()
	if cfgFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("cannot determine home directory: %w", err)
		}
		cfgFile = filepath.Join(home, ".cnvx.yaml")
	}

	if err := v.WriteConfigAs(cfgFile); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s in %s\n", key, value, cfgFile)
	return nil
}

func runConfigGet(cmd *cobra.Command, v *viper.Viper, key string) error {
	val := v.Get(key)
	if val == nil {
		return fmt.Errorf("key %q is not set", key)
	}
	fmt.Fprintln(cmd.OutOrStdout(), val)
	return nil
}
