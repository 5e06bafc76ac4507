package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/vivyterm/vivyterm/internal/model"
	"github.com/vivyterm/vivyterm/internal/terminal"
)

func newConnectCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "connect [user@]host[:port]",
		Aliases: []string{"ssh"},
		Short:   "Attach an interactive terminal session",
		Long:    "Attach the local terminal to a host from the inventory (by name or ID) or to an ad-hoc [user@]host[:port] target. Detach with ~. at the start of a line.",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConnect(cmd.Context(), app, args[0])
		},
	}
}

func runConnect(ctx context.Context, app *App, target string) error {
	host, err := resolveHost(app.Sessions.Config(), target)
	if err != nil {
		return err
	}
	hostID := ensureInventory(app, host)

	cols, rows := 80, 24
	stdoutFd := int(os.Stdout.Fd())
	if term.IsTerminal(stdoutFd) {
		if w, h, err := term.GetSize(stdoutFd); err == nil {
			cols, rows = w, h
		}
	}

	pw := passwordProviderFor(host)

	var sess terminal.Session
	err = withHostKeyTrust(func() error {
		var dialErr error
		sess, dialErr = app.Sessions.Ensure(ctx, hostID, cols, rows, func(int) (string, error) {
			return pw()
		})
		return dialErr
	})
	if err != nil {
		return err
	}
	defer app.Sessions.Disconnect(hostID)

	fmt.Fprintln(os.Stderr, successStyle.Render("✓ Connected to "+host.Name))

	stdinFd := int(os.Stdin.Fd())
	interactive := term.IsTerminal(stdinFd)
	if interactive {
		oldState, err := term.MakeRaw(stdinFd)
		if err != nil {
			return err
		}
		defer term.Restore(stdinFd, oldState)
	}

	// Window size changes propagate to the remote PTY.
	resize := make(chan struct{}, 1)
	stopResize := notifyResize(resize)
	defer stopResize()
	go func() {
		for range resize {
			if w, h, err := term.GetSize(stdoutFd); err == nil {
				_ = app.Sessions.Resize(hostID, w, h)
			}
		}
	}()

	// Keyboard -> session, with ~. detach at line start.
	go func() {
		esc := escapeState{atLineStart: true}
		buf := make([]byte, 4096)
		for {
			n, err := os.Stdin.Read(buf)
			if n > 0 {
				out, detach := esc.filter(buf[:n], interactive)
				if len(out) > 0 {
					if werr := sess.Write(out); werr != nil {
						return
					}
				}
				if detach {
					_ = sess.Close()
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	// Session -> local terminal.
	for {
		select {
		case b, ok := <-sess.Output():
			if !ok {
				fmt.Fprintln(os.Stderr, "\r\n"+infoStyle.Render("Session closed."))
				return nil
			}
			_, _ = os.Stdout.Write(b)
		case <-sess.Done():
			// Drain whatever was produced before the session ended.
			for {
				select {
				case b, ok := <-sess.Output():
					if !ok {
						b = nil
					}
					if len(b) == 0 {
						fmt.Fprintln(os.Stderr, "\r\n"+infoStyle.Render("Session closed."))
						return nil
					}
					_, _ = os.Stdout.Write(b)
				default:
					fmt.Fprintln(os.Stderr, "\r\n"+infoStyle.Render("Session closed."))
					return nil
				}
			}
		}
	}
}

// ensureInventory returns the host's inventory ID, registering ad-hoc targets
// in a transient network so the session manager can dial them.
func ensureInventory(app *App, host model.Host) int {
	cfg := app.Sessions.Config()

	if host.ID > 0 {
		return host.ID
	}

	maxID := 0
	for _, netw := range cfg.Networks {
		for _, h := range netw.Hosts {
			if h.ID > maxID {
				maxID = h.ID
			}
		}
	}
	host.ID = maxID + 1

	for i := range cfg.Networks {
		if cfg.Networks[i].Name == "ad-hoc" {
			cfg.Networks[i].Hosts = append(cfg.Networks[i].Hosts, host)
			app.Sessions.SetConfig(cfg)
			app.SFTP.SetConfig(cfg)
			return host.ID
		}
	}

	maxNetID := 0
	for _, netw := range cfg.Networks {
		if netw.ID > maxNetID {
			maxNetID = netw.ID
		}
	}
	cfg.Networks = append(cfg.Networks, model.Network{
		ID:    maxNetID + 1,
		Name:  "ad-hoc",
		Hosts: []model.Host{host},
	})
	app.Sessions.SetConfig(cfg)
	app.SFTP.SetConfig(cfg)
	return host.ID
}

// escapeState tracks the ~. detach sequence at line starts.
type escapeState struct {
	atLineStart  bool
	pendingTilde bool
}

// filter strips the detach sequence from keyboard input. It returns the bytes
// to forward and whether the user requested a detach.
func (e *escapeState) filter(in []byte, interactive bool) (out []byte, detach bool) {
	if !interactive {
		return in, false
	}

	out = make([]byte, 0, len(in))
	for _, c := range in {
		if e.pendingTilde {
			e.pendingTilde = false
			if c == '.' {
				return out, true
			}
			// Not an escape after all: forward the held tilde too.
			out = append(out, '~', c)
			e.atLineStart = c == '\r' || c == '\n'
			continue
		}

		if e.atLineStart && c == '~' {
			e.pendingTilde = true
			continue
		}

		out = append(out, c)
		e.atLineStart = c == '\r' || c == '\n'
	}
	return out, false
}
