package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/wispberry-tech/medhelp-web/config"
)

// app carries state shared by the subcommands
type app struct {
	configPath string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "medhelp",
		Short: "MedHelp web frontend server and session tools",
		Long: `medhelp serves the built MedHelp web frontend behind the route guard and
provides command-line access to the API session.

Configuration is read from medhelp.yaml (working directory or ~/.medhelp)
and from MEDHELP_* environment variables, e.g. MEDHELP_API_URL.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg

			level, _ := cfg.SlogLevel()
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
			return nil
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default is ./medhelp.yaml or $HOME/.medhelp/medhelp.yaml)")

	root.AddCommand(
		newServeCmd(a),
		newLoginCmd(a),
		newModulesCmd(a),
	)

	return root
}
