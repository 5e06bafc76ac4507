package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh"

	"github.com/vivyterm/vivyterm/internal/model"
	"github.com/vivyterm/vivyterm/internal/sshclient"
)

func newExecCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "exec <host> <command...>",
		Short: "Run a one-shot command on a host",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			host, err := resolveHost(app.Sessions.Config(), args[0])
			if err != nil {
				return err
			}
			if host.Driver == model.DriverLocal {
				return fmt.Errorf("host %s uses the local driver; exec requires SSH", host.Name)
			}

			command := strings.Join(args[1:], " ")
			pw := passwordProviderFor(host)

			var out []byte
			err = withHostKeyTrust(func() error {
				var runErr error
				out, runErr = sshclient.RunCommand(cmd.Context(), host, command, pw)
				return runErr
			})

			if len(out) > 0 {
				_, _ = os.Stdout.Write(out)
			}

			var exitErr *ssh.ExitError
			if errors.As(err, &exitErr) {
				return fmt.Errorf("remote command exited with status %d", exitErr.ExitStatus())
			}
			return err
		},
	}
}
