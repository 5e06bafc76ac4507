//go:build windows

package cli

// notifyResize is a no-op on Windows: console size changes are not signaled.
// The returned func closes ch so its consumer can exit.
func notifyResize(ch chan struct{}) func() {
	return func() { close(ch) }
}
