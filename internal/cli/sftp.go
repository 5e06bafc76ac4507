package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/vivyterm/vivyterm/internal/model"
	"github.com/vivyterm/vivyterm/internal/sftpclient"
)

const sftpUploadChunk = 256 * 1024

func newSFTPCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sftp",
		Short: "File operations over the SFTP subsystem",
	}

	cmd.AddCommand(
		newSFTPLsCmd(app),
		newSFTPGetCmd(app),
		newSFTPPutCmd(app),
		newSFTPRmCmd(app),
		newSFTPMkdirCmd(app),
		newSFTPMvCmd(app),
	)
	return cmd
}

// sftpHost resolves the target and makes sure SFTP is allowed for it.
// Ad-hoc targets get SFTP enabled implicitly; inventory hosts keep their
// configured policy.
func sftpHost(app *App, target string) (model.Host, error) {
	host, err := resolveHost(app.Sessions.Config(), target)
	if err != nil {
		return model.Host{}, err
	}
	if host.Driver == model.DriverLocal {
		return model.Host{}, fmt.Errorf("host %s uses the local driver; sftp requires SSH", host.Name)
	}
	if host.ID == 0 {
		host.SFTP = &model.SFTPConfig{
			Enabled:     true,
			Credentials: model.SFTPCredsConnection,
		}
	}
	return host, nil
}

func sftpPasswordProvider(host model.Host) func(hostID int) (string, error) {
	pw := passwordProviderFor(host)
	return func(int) (string, error) { return pw() }
}

func newSFTPLsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "ls <host> [dir]",
		Short: "List a remote directory",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			host, err := sftpHost(app, args[0])
			if err != nil {
				return err
			}
			hostID := ensureInventory(app, host)

			dir := "."
			if len(args) == 2 {
				dir = args[1]
			}

			var entries []sftpclient.Entry
			err = withHostKeyTrust(func() error {
				list, resolved, lerr := app.SFTP.List(cmd.Context(), hostID, dir, sftpPasswordProvider(host))
				if lerr != nil {
					return lerr
				}
				fmt.Println(infoStyle.Render(resolved))
				entries = list
				return nil
			})
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
			for _, e := range entries {
				kind := "-"
				if e.IsDir {
					kind = "d"
				}
				mod := time.Unix(e.ModUnix, 0).Format("2006-01-02 15:04")
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", kind, e.Size, mod, e.Name)
			}
			return w.Flush()
		},
	}
}

func newSFTPGetCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "get <host> <remote-path>",
		Short: "Download a remote file to ~/Downloads",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			host, err := sftpHost(app, args[0])
			if err != nil {
				return err
			}
			hostID := ensureInventory(app, host)

			return withHostKeyTrust(func() error {
				out, gerr := app.SFTP.DownloadToDownloads(cmd.Context(), hostID, args[1], sftpPasswordProvider(host))
				if gerr != nil {
					return gerr
				}
				fmt.Println(successStyle.Render("✓ Saved to " + out))
				return nil
			})
		},
	}
}

func newSFTPPutCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "put <host> <local-file> [remote-dir]",
		Short: "Upload a local file",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			host, err := sftpHost(app, args[0])
			if err != nil {
				return err
			}
			hostID := ensureInventory(app, host)

			localPath := args[1]
			remoteDir := "."
			if len(args) == 3 {
				remoteDir = args[2]
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

			return withHostKeyTrust(func() error {
				id, uerr := app.SFTP.BeginUpload(cmd.Context(), hostID, remoteDir, filepath.Base(localPath), sftpPasswordProvider(host))
				if uerr != nil {
					return uerr
				}

				bar := progressbar.NewOptions64(fi.Size(),
					progressbar.OptionSetWriter(os.Stderr),
					progressbar.OptionSetWidth(20),
					progressbar.OptionShowBytes(true),
					progressbar.OptionShowCount(),
					progressbar.OptionSetDescription("Uploading"),
				)

				buf := make([]byte, sftpUploadChunk)
				for {
					n, rerr := f.Read(buf)
					if n > 0 {
						if werr := app.SFTP.UploadChunk(id, buf[:n]); werr != nil {
							_ = app.SFTP.EndUpload(id)
							return werr
						}
						_ = bar.Add(n)
					}
					if rerr != nil {
						break
					}
				}
				fmt.Fprintln(os.Stderr)

				if eerr := app.SFTP.EndUpload(id); eerr != nil {
					return eerr
				}
				fmt.Println(successStyle.Render("✓ Uploaded " + filepath.Base(localPath)))
				return nil
			})
		},
	}
}

func newSFTPRmCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <host> <remote-path>",
		Short: "Remove a remote file or empty directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			host, err := sftpHost(app, args[0])
			if err != nil {
				return err
			}
			hostID := ensureInventory(app, host)
			return withHostKeyTrust(func() error {
				return app.SFTP.Remove(cmd.Context(), hostID, args[1], sftpPasswordProvider(host))
			})
		},
	}
}

func newSFTPMkdirCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <host> <remote-path>",
		Short: "Create a remote directory (parents included)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			host, err := sftpHost(app, args[0])
			if err != nil {
				return err
			}
			hostID := ensureInventory(app, host)
			return withHostKeyTrust(func() error {
				return app.SFTP.MkdirAll(cmd.Context(), hostID, args[1], sftpPasswordProvider(host))
			})
		},
	}
}

func newSFTPMvCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "mv <host> <from> <to>",
		Short: "Rename a remote file or directory",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			host, err := sftpHost(app, args[0])
			if err != nil {
				return err
			}
			hostID := ensureInventory(app, host)
			return withHostKeyTrust(func() error {
				return app.SFTP.Rename(cmd.Context(), hostID, args[1], args[2], sftpPasswordProvider(host))
			})
		},
	}
}
