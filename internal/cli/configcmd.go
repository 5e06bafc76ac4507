package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vivyterm/vivyterm/internal/config"
)

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and manage the host inventory",
	}
	cmd.AddCommand(
		newConfigShowCmd(),
		newConfigExportCmd(),
		newConfigImportCmd(app),
		newConfigImportSSHCmd(app),
	)
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the configuration with secrets removed",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			config.StripSecrets(&cfg)

			out, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))

			if path, err := config.ConfigPath(); err == nil {
				fmt.Fprintln(os.Stderr, infoStyle.Render("Config file: "+path))
			}
			return nil
		},
	}
}

func newConfigExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Export a secret-free copy to the Downloads folder",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ExportToDownloads()
			if err != nil {
				return err
			}
			fmt.Println(successStyle.Render("✓ Exported to " + path))
			return nil
		},
	}
}

func newConfigImportCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Replace the configuration from an exported file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, backup, err := config.ImportFromFile(args[0])
			if err != nil {
				return err
			}
			app.Sessions.SetConfig(cfg)
			app.SFTP.SetConfig(cfg)

			fmt.Println(successStyle.Render("✓ Imported " + filepath.Base(args[0])))
			if backup != "" {
				fmt.Fprintln(os.Stderr, infoStyle.Render("Previous config saved as "+backup))
			}
			return nil
		},
	}
}

func newConfigImportSSHCmd(app *App) *cobra.Command {
	var network string

	cmd := &cobra.Command{
		Use:   "import-ssh [file]",
		Short: "Merge hosts from an OpenSSH client config",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				home, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				path = filepath.Join(home, ".ssh", "config")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			cfg, summary, err := config.ImportSSHConfig(cfg, path, network)
			if err != nil {
				return err
			}
			if err := config.Save(cfg); err != nil {
				return err
			}
			app.Sessions.SetConfig(cfg)
			app.SFTP.SetConfig(cfg)

			fmt.Println(successStyle.Render(fmt.Sprintf(
				"✓ %d added, %d updated, %d skipped into network %q",
				summary.Added, summary.Updated, summary.Skipped, summary.NetworkName)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&network, "network", "n", "", "network to import into")
	return cmd
}
