package sshclient

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/vivyterm/vivyterm/internal/model"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

/*
Client config
*/

func buildClientConfig(
	host model.Host,
	passwordProvider func() (string, error),
) (*ssh.ClientConfig, func(), error) {

	auth, cleanup, err := authMethod(host, passwordProvider)
	if err != nil {
		return nil, nil, err
	}

	hkcb, err := hostKeyCallback(host)
	if err != nil {
		if cleanup != nil {
			cleanup()
		}
		return nil, nil, err
	}

	return &ssh.ClientConfig{
		User:            host.User,
		Auth:            []ssh.AuthMethod{auth},
		HostKeyCallback: hkcb,
		Timeout:         handshakeTimeout,
	}, cleanup, nil
}

/*
Authentication
*/

func authMethod(
	host model.Host,
	passwordProvider func() (string, error),
) (ssh.AuthMethod, func(), error) {

	switch host.Auth.Method {

	case model.AuthPassword:
		if passwordProvider == nil {
			return nil, nil, errors.New("password provider not set")
		}
		pwd, err := passwordProvider()
		if err != nil {
			return nil, nil, err
		}
		return ssh.Password(pwd), nil, nil

	case model.AuthKey:
		kp := expandHome(host.Auth.KeyPath)
		if kp == "" {
			kp = expandHome("~/.ssh/id_rsa")
		}
		b, err := os.ReadFile(kp)
		if err != nil {
			return nil, nil, err
		}
		signer, err := ssh.ParsePrivateKey(b)
		if err != nil {
			var missing *ssh.PassphraseMissingError
			if !errors.As(err, &missing) {
				return nil, nil, err
			}
			if passwordProvider == nil {
				return nil, nil, fmt.Errorf("key %s is encrypted and no passphrase provider is set", kp)
			}
			phrase, perr := passwordProvider()
			if perr != nil {
				return nil, nil, perr
			}
			signer, err = ssh.ParsePrivateKeyWithPassphrase(b, []byte(phrase))
			if err != nil {
				return nil, nil, err
			}
		}
		return ssh.PublicKeys(signer), nil, nil

	case model.AuthAgent:
		sock := os.Getenv("SSH_AUTH_SOCK")
		if sock == "" {
			return nil, nil, errors.New("SSH_AUTH_SOCK is not set")
		}
		conn, err := net.DialTimeout("unix", sock, 2*time.Second)
		if err != nil {
			return nil, nil, err
		}
		ag := agent.NewClient(conn)
		return ssh.PublicKeysCallback(ag.Signers), func() { _ = conn.Close() }, nil

	case model.AuthKeyboardInteractive:
		if passwordProvider == nil {
			return nil, nil, errors.New("password provider not set")
		}
		// The provider is only consulted during the handshake, once the
		// server actually sends a challenge.
		cb := func(name, instruction string, questions []string, echos []bool) ([]string, error) {
			answers := make([]string, len(questions))
			for i := range questions {
				pwd, err := passwordProvider()
				if err != nil {
					return nil, err
				}
				answers[i] = pwd
			}
			return answers, nil
		}
		return ssh.KeyboardInteractive(cb), nil, nil

	default:
		return nil, nil, fmt.Errorf("unknown auth method: %s", host.Auth.Method)
	}
}

/*
Utils
*/

func expandHome(p string) string {
	if len(p) >= 2 && p[:2] == "~/" {
		if h, err := os.UserHomeDir(); err == nil {
			return filepath.Join(h, p[2:])
		}
	}
	return p
}
