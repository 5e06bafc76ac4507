// Package cli is the command-line front end: it drives the session manager,
// file transfer, and forwarding packages from cobra commands.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/vivyterm/vivyterm/internal/buildinfo"
	"github.com/vivyterm/vivyterm/internal/config"
	"github.com/vivyterm/vivyterm/internal/session"
	"github.com/vivyterm/vivyterm/internal/sftpclient"
)

// Style definitions using lipgloss
var (
	primaryColor = lipgloss.Color("#04B575")
	errorColor   = lipgloss.Color("#FF4B4B")
	warningColor = lipgloss.Color("#FFA500")
	infoColor    = lipgloss.Color("#3B82F6")

	successStyle = lipgloss.NewStyle().
			Foreground(primaryColor)

	errorStyle = lipgloss.NewStyle().
			Foreground(errorColor).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(warningColor)

	infoStyle = lipgloss.NewStyle().
			Foreground(infoColor)

	headerStyle = lipgloss.NewStyle().
			Foreground(primaryColor).
			Bold(true).
			Underline(true)
)

// App carries the shared state every command operates on.
type App struct {
	Sessions *session.Manager
	SFTP     *sftpclient.Manager

	cfgPath string
}

// NewApp loads the config and wires up the managers.
func NewApp() (*App, error) {
	cfg, cfgPath, err := config.EnsureConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return &App{
		Sessions: session.NewManager(cfg),
		SFTP:     sftpclient.NewManager(cfg),
		cfgPath:  cfgPath,
	}, nil
}

// NewRootCmd creates the root command tree.
func NewRootCmd(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "vivyterm [host] [command...]",
		Short:        "Terminal session manager for SSH and local PTY hosts",
		Long:         headerStyle.Render("VivyTerm") + " manages terminal sessions across an inventory of SSH and local PTY hosts, with SFTP/SCP transfer and port forwarding.",
		SilenceUsage: true,
		Version:      buildinfo.String(),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Bare "vivyterm <host>" behaves like connect.
			if len(args) > 0 {
				return runConnect(cmd.Context(), app, args[0])
			}
			return cmd.Help()
		},
	}

	rootCmd.AddCommand(
		newConnectCmd(app),
		newListCmd(app),
		newExecCmd(app),
		newSFTPCmd(app),
		newSCPCmd(app),
		newForwardCmd(app),
		newConfigCmd(app),
		newVersionCmd(),
	)

	return rootCmd
}

// Execute runs the CLI and returns the process exit code.
func Execute(ctx context.Context) int {
	app, err := NewApp()
	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render(err.Error()))
		return 1
	}
	defer app.Sessions.DisconnectAll()
	defer app.SFTP.DisconnectAll()

	if err := fang.Execute(ctx, NewRootCmd(app)); err != nil {
		return 1
	}
	return 0
}
