package sshclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"github.com/vivyterm/vivyterm/internal/model"
	"github.com/vivyterm/vivyterm/internal/terminal"
	"golang.org/x/crypto/ssh"
)

const (
	dialTimeout      = 8 * time.Second
	handshakeTimeout = 10 * time.Second
)

/*
NodeSession
*/

// NodeSession is an interactive remote shell over SSH.
type NodeSession struct {
	Host model.Host

	client  *ssh.Client
	sess    *ssh.Session
	cleanup func()

	stdin io.WriteCloser

	output chan []byte
	done   chan struct{}

	once sync.Once
}

var _ terminal.Session = (*NodeSession)(nil)

// DialClient dials the host and completes the SSH handshake. The returned
// cleanup releases auth resources (e.g. the agent socket) and must be called
// after the client is closed.
func DialClient(
	ctx context.Context,
	host model.Host,
	passwordProvider func() (string, error),
) (*ssh.Client, func(), error) {

	cfg, cleanup, err := buildClientConfig(host, passwordProvider)
	if err != nil {
		return nil, nil, err
	}

	addr := net.JoinHostPort(host.Host, fmt.Sprint(host.Port))

	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		if cleanup != nil {
			cleanup()
		}
		return nil, nil, err
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		_ = conn.Close()
		if cleanup != nil {
			cleanup()
		}
		return nil, nil, err
	}

	return ssh.NewClient(c, chans, reqs), cleanup, nil
}

// DialAndStart dials the host and starts an interactive shell with a PTY of
// the given size.
func DialAndStart(
	ctx context.Context,
	host model.Host,
	cols, rows int,
	passwordProvider func() (string, error),
) (*NodeSession, error) {

	client, cleanup, err := DialClient(ctx, host, passwordProvider)
	if err != nil {
		return nil, err
	}

	fail := func(err error) (*NodeSession, error) {
		_ = client.Close()
		if cleanup != nil {
			cleanup()
		}
		return nil, err
	}

	sess, err := client.NewSession()
	if err != nil {
		return fail(err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}

	if err := sess.RequestPty("xterm-256color", rows, cols, modes); err != nil {
		_ = sess.Close()
		return fail(err)
	}

	stdin, err := sess.StdinPipe()
	if err != nil {
		_ = sess.Close()
		return fail(err)
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		_ = sess.Close()
		return fail(err)
	}
	stderr, err := sess.StderrPipe()
	if err != nil {
		_ = sess.Close()
		return fail(err)
	}

	if err := sess.Shell(); err != nil {
		_ = sess.Close()
		return fail(err)
	}

	ns := &NodeSession{
		Host:    host,
		client:  client,
		sess:    sess,
		cleanup: cleanup,
		stdin:   stdin,
		output:  make(chan []byte, 128),
		done:    make(chan struct{}),
	}

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		ns.pump(stdout)
	}()
	go func() {
		defer wg.Done()
		ns.pump(stderr)
	}()

	// Close the session once both output streams are done (EOF / disconnect).
	go func() {
		wg.Wait()
		_ = ns.Close()
	}()

	return ns, nil
}

func (s *NodeSession) Output() <-chan []byte { return s.output }
func (s *NodeSession) Done() <-chan struct{} { return s.done }

/*
Pump output
*/

func (s *NodeSession) pump(r io.Reader) {
	buf := make([]byte, 8192)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			b := make([]byte, n)
			copy(b, buf[:n])
			select {
			case s.output <- b:
			case <-s.done:
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func (s *NodeSession) Write(p []byte) error {
	_, err := s.stdin.Write(p)
	return err
}

func (s *NodeSession) Resize(cols, rows int) error {
	if s.sess == nil {
		return nil
	}
	return s.sess.WindowChange(rows, cols)
}

func (s *NodeSession) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)

		if s.sess != nil {
			_ = s.sess.Close()
		}
		if s.client != nil {
			err = s.client.Close()
		}
		if s.cleanup != nil {
			s.cleanup()
		}
	})
	return err
}

/*
One-shot commands
*/

// RunCommand executes a single remote command and returns its combined output.
// A non-zero exit status is returned as an *ssh.ExitError alongside whatever
// output the command produced.
func RunCommand(
	ctx context.Context,
	host model.Host,
	command string,
	passwordProvider func() (string, error),
) ([]byte, error) {

	client, cleanup, err := DialClient(ctx, host, passwordProvider)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = client.Close()
		if cleanup != nil {
			cleanup()
		}
	}()

	sess, err := client.NewSession()
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	var out bytes.Buffer
	sess.Stdout = &out
	sess.Stderr = &out

	// Tear the session down if the context ends first.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			log.Printf("ssh: command on %s canceled: %v", host.Name, ctx.Err())
			_ = sess.Close()
		case <-stop:
		}
	}()

	err = sess.Run(command)
	return out.Bytes(), err
}
