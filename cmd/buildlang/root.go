package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"buildlang/internal/config"
)

var (
	configFile  string
	dialectFlag string
	jsonFlag    bool

	resolved config.Config
)

// NewRootCmd builds the buildlang command tree.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "buildlang",
		Short: "buildlang - a parser toolchain for a Python-subset build-configuration language",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loader := config.NewLoader()
			if err := loader.LoadFile(configFile); err != nil {
				return err
			}
			if err := loader.LoadFlags(cmd.Flags()); err != nil {
				return err
			}
			cfg, err := loader.Resolve()
			if err != nil {
				return err
			}
			resolved = cfg

			if !resolved.JSON {
				slog.Info("dialect resolved", "dialect", resolved.Dialect.Name, "config", configFile)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "path to a buildlang.yaml config file")
	cmd.PersistentFlags().StringVar(&dialectFlag, "dialect", "strict", "dialect preset: strict or permissive")
	cmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "emit machine-readable JSON instead of human text")

	cmd.AddCommand(newTokensCmd())
	cmd.AddCommand(newParseCmd())
	cmd.AddCommand(newReplCmd())

	return cmd
}

func readSourceFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
