// Package forward tunnels TCP traffic through an established SSH connection:
// fixed local forwards (ssh -L) and a dynamic SOCKS5 forward (ssh -D).
package forward

import (
	"context"
	"errors"
	"io"
	"log"
	"net"
	"sync"

	"github.com/txthinking/socks5"
	"golang.org/x/crypto/ssh"
)

// Local listens on listenAddr and forwards every accepted connection to
// targetAddr through the SSH client. It blocks until the context ends or the
// listener fails.
func Local(ctx context.Context, client *ssh.Client, listenAddr, targetAddr string) error {
	if targetAddr == "" {
		return errors.New("forward target is empty")
	}

	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return err
	}
	defer ln.Close()

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	log.Printf("forward: %s -> %s", ln.Addr(), targetAddr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		go func() {
			defer conn.Close()

			remote, err := client.Dial("tcp", targetAddr)
			if err != nil {
				log.Printf("forward: dial %s: %v", targetAddr, err)
				return
			}
			defer remote.Close()

			pipe(conn, remote)
		}()
	}
}

// Socks runs a local SOCKS5 server on listenAddr and tunnels CONNECT
// requests through the SSH client. It blocks until the context ends or the
// listener fails.
func Socks(ctx context.Context, client *ssh.Client, listenAddr string) error {
	srv, err := socks5.NewClassicServer(listenAddr, "127.0.0.1", "", "", 0, 60)
	if err != nil {
		return err
	}
	srv.SupportedCommands = []byte{socks5.CmdConnect}

	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return err
	}
	defer ln.Close()

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	log.Printf("forward: socks5 on %s", ln.Addr())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		go func() {
			defer conn.Close()
			if err := handleSocksConn(srv, client, conn); err != nil {
				log.Printf("forward: socks5: %v", err)
			}
		}()
	}
}

func handleSocksConn(srv *socks5.Server, client *ssh.Client, conn net.Conn) error {
	if err := srv.Negotiate(conn); err != nil {
		return err
	}

	req, err := srv.GetRequest(conn)
	if err != nil {
		return err
	}
	if req.Cmd != socks5.CmdConnect {
		return errors.New("unsupported socks5 command")
	}

	// Dial the target over the SSH connection rather than directly; the
	// request's own Connect would bypass the tunnel.
	remote, err := client.Dial("tcp", req.Address())
	if err != nil {
		rep := socks5.NewReply(socks5.RepHostUnreachable, socks5.ATYPIPv4, net.IPv4zero.To4(), []byte{0, 0})
		_, _ = rep.WriteTo(conn)
		return err
	}
	defer remote.Close()

	rep := socks5.NewReply(socks5.RepSuccess, socks5.ATYPIPv4, net.IPv4zero.To4(), []byte{0, 0})
	if _, err := rep.WriteTo(conn); err != nil {
		return err
	}

	pipe(conn, remote)
	return nil
}

// pipe copies in both directions until either side closes.
func pipe(a, b io.ReadWriteCloser) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = io.Copy(a, b)
		_ = a.Close()
	}()
	go func() {
		defer wg.Done()
		_, _ = io.Copy(b, a)
		_ = b.Close()
	}()
	wg.Wait()
}
