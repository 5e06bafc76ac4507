package cli

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"

	"github.com/vivyterm/vivyterm/internal/model"
	"github.com/vivyterm/vivyterm/internal/sshclient"
)

// resolveHost looks a target up in the inventory by name or numeric ID.
// Targets of the form [user@]host[:port] that miss the inventory become
// ad-hoc SSH hosts.
func resolveHost(cfg model.AppConfig, target string) (model.Host, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return model.Host{}, errors.New("no host given")
	}

	if id, err := strconv.Atoi(target); err == nil {
		for _, netw := range cfg.Networks {
			for _, h := range netw.Hosts {
				if h.ID == id {
					return h, nil
				}
			}
		}
		return model.Host{}, fmt.Errorf("host %d not found", id)
	}

	for _, netw := range cfg.Networks {
		for _, h := range netw.Hosts {
			if h.Name == target {
				return h, nil
			}
		}
	}

	return adHocHost(target)
}

func adHocHost(target string) (model.Host, error) {
	user := ""
	rest := target
	if i := strings.LastIndex(target, "@"); i >= 0 {
		user = target[:i]
		rest = target[i+1:]
	}
	if user == "" {
		user = os.Getenv("USER")
	}
	if user == "" {
		return model.Host{}, fmt.Errorf("no user for target %q", target)
	}

	host := rest
	port := 22
	switch {
	case strings.HasPrefix(rest, "["):
		// Bracketed IPv6, with or without a port: [::1]:2222 or [::1].
		if h, p, err := net.SplitHostPort(rest); err == nil {
			pn, perr := strconv.Atoi(p)
			if perr != nil || pn <= 0 || pn > 65535 {
				return model.Host{}, fmt.Errorf("invalid port in target %q", target)
			}
			host, port = h, pn
		} else if strings.HasSuffix(rest, "]") {
			host = rest[1 : len(rest)-1]
		} else {
			return model.Host{}, fmt.Errorf("invalid target %q", target)
		}

	case strings.Count(rest, ":") > 1:
		// Bare IPv6 literal; a port needs the bracketed form.
		if net.ParseIP(rest) == nil {
			return model.Host{}, fmt.Errorf("invalid target %q (bracket IPv6 literals to add a port)", target)
		}

	case strings.Contains(rest, ":"):
		i := strings.LastIndex(rest, ":")
		p, err := strconv.Atoi(rest[i+1:])
		if err != nil || p <= 0 || p > 65535 {
			return model.Host{}, fmt.Errorf("invalid port in target %q", target)
		}
		host = rest[:i]
		port = p
	}
	if host == "" {
		return model.Host{}, fmt.Errorf("no hostname in target %q", target)
	}

	auth := model.AuthConfig{Method: model.AuthPassword}
	if os.Getenv("SSH_AUTH_SOCK") != "" {
		auth = model.AuthConfig{Method: model.AuthAgent}
	}

	return model.Host{
		Name:   target,
		Host:   host,
		Port:   port,
		User:   user,
		Driver: model.DriverSSH,
		Auth:   auth,
		HostKey: model.HostKeyConfig{
			Mode: model.HostKeyKnownHosts,
		},
	}, nil
}

// promptPassword reads a password from the controlling terminal.
func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func passwordProviderFor(host model.Host) func() (string, error) {
	return func() (string, error) {
		if host.Auth.Method == model.AuthPassword && host.Auth.Password != "" {
			return host.Auth.Password, nil
		}
		label := "Password"
		if host.Auth.Method == model.AuthKey {
			label = "Passphrase"
		}
		return promptPassword(fmt.Sprintf("%s for %s@%s: ", label, host.User, host.Host))
	}
}

// withHostKeyTrust runs dial and, when the host is unknown, asks the user to
// trust the presented key before retrying once. A key mismatch always aborts.
func withHostKeyTrust(dial func() error) error {
	err := dial()
	if err == nil {
		return nil
	}

	var mismatch sshclient.ErrHostKeyMismatch
	if errors.As(err, &mismatch) {
		fmt.Fprintln(os.Stderr, errorStyle.Render(
			"Host key for "+mismatch.HostPort+" has changed ("+mismatch.Fingerprint+")."))
		fmt.Fprintln(os.Stderr, warningStyle.Render(
			"This may indicate a man-in-the-middle attack. Remove the old entry from ~/.ssh/known_hosts if the change is expected."))
		return err
	}

	var unk sshclient.ErrUnknownHostKey
	if !errors.As(err, &unk) {
		return err
	}

	var accept bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Unknown host " + unk.HostPort).
				Description("Key fingerprint: " + unk.Fingerprint + "\nTrust this host and continue?").
				Affirmative("Trust").
				Negative("Abort").
				Value(&accept),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}
	if !accept {
		return errors.New("host key rejected")
	}

	if err := sshclient.TrustHostKey(unk.HostPort, unk.Key); err != nil {
		return fmt.Errorf("persist host key: %w", err)
	}
	fmt.Fprintln(os.Stderr, successStyle.Render("✓ Host key added to ~/.ssh/known_hosts"))

	return dial()
}
