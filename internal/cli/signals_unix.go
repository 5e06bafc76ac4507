//go:build !windows

package cli

import (
	"os"
	"os/signal"
	"syscall"
)

// notifyResize forwards SIGWINCH to ch. The returned func stops delivery and
// closes ch so its consumer can exit.
func notifyResize(ch chan struct{}) func() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGWINCH)
	go func() {
		for range sig {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
		close(ch)
	}()
	return func() {
		signal.Stop(sig)
		close(sig)
	}
}
