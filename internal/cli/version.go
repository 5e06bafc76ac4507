package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vivyterm/vivyterm/internal/buildinfo"
	"github.com/vivyterm/vivyterm/internal/update"
)

func newVersionCmd() *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(buildinfo.String())

			if !check {
				return nil
			}

			rel, err := update.Latest(cmd.Context())
			if err != nil {
				fmt.Fprintln(os.Stderr, warningStyle.Render("Update check failed: "+err.Error()))
				return nil
			}
			if rel.IsNewer(buildinfo.Version) {
				fmt.Println(infoStyle.Render(fmt.Sprintf("Update available: %s (%s)", rel.Tag, rel.HTMLURL)))
			} else {
				fmt.Println(successStyle.Render("✓ Up to date"))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "check GitHub for a newer release")
	return cmd
}
