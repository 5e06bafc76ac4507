package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/vivyterm/vivyterm/internal/model"
	"github.com/vivyterm/vivyterm/internal/scpclient"
)

func newSCPCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "scp <source> <destination>",
		Short: "Copy a file over SCP",
		Long:  "Copy a single file to or from a host. One side names a remote path as host:path; the other is a local path.",
		Example: `  vivyterm scp ./app.conf web1:/etc/app/app.conf
  vivyterm scp web1:/var/log/app.log ./app.log`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, dst := args[0], args[1]

			srcHost, srcPath := splitSCPArg(src)
			dstHost, dstPath := splitSCPArg(dst)

			if (srcHost == "") == (dstHost == "") {
				return errors.New("exactly one of source/destination must be host:path")
			}

			progress := term.IsTerminal(int(os.Stderr.Fd()))

			if srcHost != "" {
				// download
				host, err := scpResolve(app, srcHost)
				if err != nil {
					return err
				}
				pw := passwordProviderFor(host)
				err = withHostKeyTrust(func() error {
					return scpclient.Download(cmd.Context(), host, srcPath, dstPath, pw, progress)
				})
				if err != nil {
					return err
				}
				fmt.Println(successStyle.Render("✓ Downloaded " + srcPath))
				return nil
			}

			// upload
			host, err := scpResolve(app, dstHost)
			if err != nil {
				return err
			}
			pw := passwordProviderFor(host)
			err = withHostKeyTrust(func() error {
				return scpclient.Upload(cmd.Context(), host, srcPath, dstPath, pw, progress)
			})
			if err != nil {
				return err
			}
			fmt.Println(successStyle.Render("✓ Uploaded " + srcPath))
			return nil
		},
	}
}

func scpResolve(app *App, target string) (model.Host, error) {
	host, err := resolveHost(app.Sessions.Config(), target)
	if err != nil {
		return model.Host{}, err
	}
	if host.Driver == model.DriverLocal {
		return model.Host{}, fmt.Errorf("host %s uses the local driver; scp requires SSH", host.Name)
	}
	return host, nil
}

// splitSCPArg splits host:path arguments. Paths without a colon (or with a
// leading ./ or /) are local.
func splitSCPArg(arg string) (host, path string) {
	if strings.HasPrefix(arg, "/") || strings.HasPrefix(arg, "./") || strings.HasPrefix(arg, "../") {
		return "", arg
	}
	if i := strings.Index(arg, ":"); i > 0 {
		return arg[:i], arg[i+1:]
	}
	return "", arg
}
