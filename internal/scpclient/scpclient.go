// Package scpclient copies single files over SSH using the SCP protocol.
// It complements sftpclient for hosts where the SFTP subsystem is disabled.
package scpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	scp "github.com/bramvdbogaerde/go-scp"
	"github.com/schollz/progressbar/v3"
	"github.com/vivyterm/vivyterm/internal/model"
	"github.com/vivyterm/vivyterm/internal/sshclient"
)

// Upload copies a local file to remotePath on the host. When progress is
// true a byte progress bar is rendered to stderr.
func Upload(
	ctx context.Context,
	host model.Host,
	localPath, remotePath string,
	passwordProvider func() (string, error),
	progress bool,
) error {
	if localPath == "" || remotePath == "" {
		return errors.New("scp path is empty")
	}

	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return err
	}
	permissions := fmt.Sprintf("0%o", fi.Mode().Perm())

	client, cleanup, err := sshclient.DialClient(ctx, host, passwordProvider)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
		if cleanup != nil {
			cleanup()
		}
	}()

	scpCl, err := scp.NewClientBySSH(client)
	if err != nil {
		return fmt.Errorf("scp client: %w", err)
	}
	defer scpCl.Close()

	if strings.HasSuffix(remotePath, "/") {
		remotePath += filepath.Base(localPath)
	}

	if !progress {
		return scpCl.CopyFromFile(ctx, *f, remotePath, permissions)
	}

	bar := newBar(fi.Size(), "Uploading")
	err = scpCl.CopyFromFilePassThru(ctx, *f, remotePath, permissions, passThru(bar))
	fmt.Fprintln(os.Stderr)
	return err
}

// Download copies remotePath from the host into localPath. A trailing
// separator (or existing directory) on localPath keeps the remote base name.
func Download(
	ctx context.Context,
	host model.Host,
	remotePath, localPath string,
	passwordProvider func() (string, error),
	progress bool,
) error {
	if localPath == "" || remotePath == "" {
		return errors.New("scp path is empty")
	}

	if fi, err := os.Stat(localPath); err == nil && fi.IsDir() {
		localPath = filepath.Join(localPath, filepath.Base(remotePath))
	}

	client, cleanup, err := sshclient.DialClient(ctx, host, passwordProvider)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
		if cleanup != nil {
			cleanup()
		}
	}()

	scpCl, err := scp.NewClientBySSH(client)
	if err != nil {
		return fmt.Errorf("scp client: %w", err)
	}
	defer scpCl.Close()

	f, err := os.OpenFile(localPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	if !progress {
		return scpCl.CopyFromRemote(ctx, f, remotePath)
	}

	// Remote size is unknown until the transfer starts; the pass-through
	// callback receives it from the SCP header.
	bar := newBar(-1, "Downloading")
	err = scpCl.CopyFromRemotePassThru(ctx, f, remotePath, passThru(bar))
	fmt.Fprintln(os.Stderr)
	return err
}

func newBar(size int64, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(size,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetWidth(20),
		progressbar.OptionShowBytes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSpinnerType(22),
	)
}

func passThru(bar *progressbar.ProgressBar) scp.PassThru {
	return func(r io.Reader, total int64) io.Reader {
		if total > 0 {
			bar.ChangeMax64(total)
		}
		return io.TeeReader(r, bar)
	}
}
