package sshclient

import (
	"errors"
	"net"
	"os"
	"path/filepath"

	"github.com/vivyterm/vivyterm/internal/model"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

/*
Known-hosts UX errors
*/

type ErrUnknownHostKey struct {
	HostPort    string
	Fingerprint string
	Key         ssh.PublicKey
}

func (e ErrUnknownHostKey) Error() string {
	return "unknown host key: " + e.HostPort + " (" + e.Fingerprint + ")"
}

type ErrHostKeyMismatch struct {
	HostPort    string
	Fingerprint string
	Key         ssh.PublicKey
}

func (e ErrHostKeyMismatch) Error() string {
	return "host key mismatch: " + e.HostPort + " (" + e.Fingerprint + ")"
}

/*
Host key verification
*/

func hostKeyCallback(host model.Host) (ssh.HostKeyCallback, error) {
	if host.HostKey.Mode == model.HostKeyInsecure {
		return ssh.InsecureIgnoreHostKey(), nil
	}

	khPath := expandHome("~/.ssh/known_hosts")

	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		fp := ssh.FingerprintSHA256(key)
		hostPort := knownhosts.Normalize(hostname)

		matcher, err := knownhosts.New(khPath)
		if err != nil {
			if os.IsNotExist(err) {
				// No known_hosts yet: every host is unknown.
				return ErrUnknownHostKey{
					HostPort:    hostPort,
					Fingerprint: fp,
					Key:         key,
				}
			}
			return err
		}

		err = matcher(hostname, remote, key)
		if err == nil {
			return nil
		}

		var kerr *knownhosts.KeyError
		if errors.As(err, &kerr) {

			// Unknown host
			if len(kerr.Want) == 0 {
				return ErrUnknownHostKey{
					HostPort:    hostPort,
					Fingerprint: fp,
					Key:         key,
				}
			}

			// Host key mismatch
			return ErrHostKeyMismatch{
				HostPort:    hostPort,
				Fingerprint: fp,
				Key:         key,
			}
		}

		return err
	}, nil
}

/*
Trust helper
*/

func TrustHostKey(hostPort string, key ssh.PublicKey) error {
	khPath := expandHome("~/.ssh/known_hosts")

	if err := os.MkdirAll(filepath.Dir(khPath), 0o700); err != nil {
		return err
	}

	line := knownhosts.Line([]string{hostPort}, key)

	f, err := os.OpenFile(khPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.WriteString(line + "\n")
	return err
}
