package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh"

	"github.com/vivyterm/vivyterm/internal/forward"
	"github.com/vivyterm/vivyterm/internal/model"
	"github.com/vivyterm/vivyterm/internal/sshclient"
)

func newForwardCmd(app *App) *cobra.Command {
	var localSpec string
	var socksAddr string

	cmd := &cobra.Command{
		Use:   "forward <host>",
		Short: "Forward ports through a host",
		Long:  "Open a local TCP forward or a SOCKS5 proxy tunnelled through an SSH host. Runs until interrupted.",
		Example: `  vivyterm forward web1 -L 8080:localhost:80
  vivyterm forward web1 -D 1080`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (localSpec == "") == (socksAddr == "") {
				return errors.New("give exactly one of -L or -D")
			}

			host, err := resolveHost(app.Sessions.Config(), args[0])
			if err != nil {
				return err
			}
			if host.Driver == model.DriverLocal {
				return fmt.Errorf("host %s uses the local driver; forwarding requires SSH", host.Name)
			}

			pw := passwordProviderFor(host)
			var client *ssh.Client
			var cleanup func()
			err = withHostKeyTrust(func() error {
				client, cleanup, err = sshclient.DialClient(cmd.Context(), host, pw)
				return err
			})
			if err != nil {
				return err
			}
			defer func() {
				_ = client.Close()
				if cleanup != nil {
					cleanup()
				}
			}()

			if socksAddr != "" {
				listen := normalizeListenAddr(socksAddr)
				fmt.Fprintln(os.Stderr, infoStyle.Render("SOCKS5 proxy on "+listen+" via "+host.Name))
				return forward.Socks(cmd.Context(), client, listen)
			}

			listen, target, err := parseForwardSpec(localSpec)
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stderr, infoStyle.Render("Forwarding "+listen+" -> "+target+" via "+host.Name))
			return forward.Local(cmd.Context(), client, listen, target)
		},
	}

	cmd.Flags().StringVarP(&localSpec, "local", "L", "",
		"local forward spec: [bind:]port:targetHost:targetPort")
	cmd.Flags().StringVarP(&socksAddr, "socks", "D", "",
		"SOCKS5 listen address: [bind:]port")

	return cmd
}

// parseForwardSpec accepts port:host:hostport or bind:port:host:hostport.
func parseForwardSpec(spec string) (listen, target string, err error) {
	parts := strings.Split(spec, ":")
	switch len(parts) {
	case 3:
		return "127.0.0.1:" + parts[0], parts[1] + ":" + parts[2], nil
	case 4:
		return parts[0] + ":" + parts[1], parts[2] + ":" + parts[3], nil
	default:
		return "", "", fmt.Errorf("invalid forward spec %q", spec)
	}
}

func normalizeListenAddr(addr string) string {
	if strings.Contains(addr, ":") {
		return addr
	}
	return "127.0.0.1:" + addr
}
