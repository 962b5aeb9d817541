package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/SmitUplenchwar2687/gatekeeper/internal/config"
)

func newConfigCmd(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create and check configuration files",
	}

	var (
		output string
		force  bool
	)
	initCmd := &cobra.Command{
		Use:     "init",
		Short:   "Write an example config file",
		Example: `  gatekeeper config init --output gatekeeper.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				if _, err := os.Stat(output); err == nil {
					return fmt.Errorf("%s already exists, use --force to overwrite", output)
				}
			}
			if err := config.WriteExample(output); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Generated example config at %s\n", output)
			return nil
		},
	}
	initCmd.Flags().StringVar(&output, "output", "gatekeeper.yaml", "output file path")
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	validateCmd := &cobra.Command{
		Use:   "validate [file]",
		Short: "Check a config file",
		Long: `Loads a config file over the defaults and validates it. The file can be
given as an argument or with --config.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				g.configPath = args[0]
			}
			if g.configPath == "" {
				return fmt.Errorf("no config file given")
			}
			cfg, err := g.load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("%s: %w", g.configPath, err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s is valid\n", g.configPath)
			fmt.Fprintf(out, "  classes:   %d\n", len(cfg.Limits))
			fmt.Fprintf(out, "  endpoints: %d\n", len(cfg.Endpoints))
			for _, ep := range cfg.SortedEndpoints() {
				fmt.Fprintf(out, "    %-20s -> %s\n", ep, cfg.Endpoints[ep])
			}
			fmt.Fprintf(out, "  storage:   %s\n", cfg.Storage.Backend)
			return nil
		},
	}

	cmd.AddCommand(initCmd, validateCmd)
	return cmd
}
