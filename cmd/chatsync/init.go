package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vango-dev/chatsync/internal/config"
	"github.com/vango-dev/chatsync/internal/errors"
)

func initCmd() *cobra.Command {
	var (
		yamlFormat bool
		driver     string
		force      bool
	)

	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Write a default config file",
		Long: `Write chatsync.json (or chatsync.yaml with --yaml) with default
settings to dir, or the working directory.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			if err := os.MkdirAll(dir, 0755); err != nil {
				return err
			}

			name := config.ConfigFileName
			if yamlFormat {
				name = config.YAMLConfigFileName
			}
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil && !force {
				return errors.Newf(errors.CategoryCLI, "%s already exists", path).
					WithSuggestion("Pass --force to overwrite it")
			}

			cfg := config.New()
			cfg.Storage.Driver = driver
			if driver != config.DriverSQLite {
				cfg.Storage.DSN = ""
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := cfg.SaveTo(path); err != nil {
				return err
			}

			success("Wrote %s", path)
			info("Start the server with: chatsync serve")
			return nil
		},
	}

	cmd.Flags().BoolVar(&yamlFormat, "yaml", false, "write YAML instead of JSON")
	cmd.Flags().StringVar(&driver, "driver", config.DriverSQLite, "storage driver (memory, sqlite, postgres, mysql)")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing config")

	return cmd
}
