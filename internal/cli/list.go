package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/vivyterm/vivyterm/internal/model"
	"github.com/vivyterm/vivyterm/internal/session"
)

func newListCmd(app *App) *cobra.Command {
	var interactive bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List the host inventory",
		RunE: func(cmd *cobra.Command, args []string) error {
			if interactive {
				return runListInteractive(cmd, app)
			}
			return runList(app)
		},
	}

	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "pick a host and connect")
	return cmd
}

func runList(app *App) error {
	cfg := app.Sessions.Config()

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, headerStyle.Render("ID")+"\t"+headerStyle.Render("NAME")+"\t"+headerStyle.Render("TARGET")+"\t"+headerStyle.Render("DRIVER")+"\t"+headerStyle.Render("STATE"))

	for _, netw := range cfg.Networks {
		for _, h := range netw.Hosts {
			target := fmt.Sprintf("%s@%s:%d", h.User, h.Host, h.Port)
			driver := h.Driver
			if driver == "" {
				driver = model.DriverSSH
			}
			if driver == model.DriverLocal && h.Local != nil {
				target = h.Local.Path
			}

			info := app.Sessions.SessionInfo(h.ID)
			state := info.State.String()
			if info.State == session.StateConnected {
				state = successStyle.Render(state)
			}

			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", h.ID, h.Name, target, driver, state)
		}
	}
	return w.Flush()
}

func runListInteractive(cmd *cobra.Command, app *App) error {
	cfg := app.Sessions.Config()

	var options []huh.Option[string]
	for _, netw := range cfg.Networks {
		for _, h := range netw.Hosts {
			label := fmt.Sprintf("%s (%s@%s:%d)", h.Name, h.User, h.Host, h.Port)
			options = append(options, huh.NewOption(label, h.Name))
		}
	}
	if len(options) == 0 {
		fmt.Println(warningStyle.Render("No hosts in the inventory"))
		return nil
	}

	var selected string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title(headerStyle.Render("Select a host to connect to")).
				Description("Use arrow keys to navigate, Enter to select").
				Options(options...).
				Value(&selected),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}
	if selected == "" {
		return fmt.Errorf("no host selected")
	}

	fmt.Println(successStyle.Render("✓ Selected: " + selected))
	return runConnect(cmd.Context(), app, selected)
}
