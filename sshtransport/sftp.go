package sshtransport

import (
	"context"
	"io"
	"os"

	"github.com/pkg/sftp"

	"github.com/beauremus/pacsys/pacsyserr"
)

// SFTPClient opens (or returns the cached) SFTP session on the final
// hop. Callers that need raw *sftp.Client access (directory walks,
// symlinks, permission changes) can use it directly; Get/Put/Remove/
// List below cover the common cases.
func (c *Client) SFTPClient(ctx context.Context) (*sftp.Client, error) {
	client, err := c.ensureConnected(ctx)
	if err != nil {
		return nil, err
	}
	sc, err := sftp.NewClient(client)
	if err != nil {
		return nil, &pacsyserr.SSHError{Message: "failed to start sftp session", Cause: err}
	}
	return sc, nil
}

// Get copies remotePath to localPath.
func (c *Client) Get(ctx context.Context, remotePath, localPath string) error {
	sc, err := c.SFTPClient(ctx)
	if err != nil {
		return err
	}
	defer sc.Close()

	remote, err := sc.Open(remotePath)
	if err != nil {
		return &pacsyserr.SSHError{Message: "failed to open remote file " + remotePath, Cause: err}
	}
	defer remote.Close()

	local, err := os.Create(localPath)
	if err != nil {
		return &pacsyserr.SSHError{Message: "failed to create local file " + localPath, Cause: err}
	}
	defer local.Close()

	if _, err := io.Copy(local, remote); err != nil {
		return &pacsyserr.SSHError{Message: "file transfer failed", Cause: err}
	}
	return nil
}

// Put copies localPath to remotePath.
func (c *Client) Put(ctx context.Context, localPath, remotePath string) error {
	sc, err := c.SFTPClient(ctx)
	if err != nil {
		return err
	}
	defer sc.Close()

	local, err := os.Open(localPath)
	if err != nil {
		return &pacsyserr.SSHError{Message: "failed to open local file " + localPath, Cause: err}
	}
	defer local.Close()

	remote, err := sc.Create(remotePath)
	if err != nil {
		return &pacsyserr.SSHError{Message: "failed to create remote file " + remotePath, Cause: err}
	}
	defer remote.Close()

	if _, err := io.Copy(remote, local); err != nil {
		return &pacsyserr.SSHError{Message: "file transfer failed", Cause: err}
	}
	return nil
}

// List returns the names of entries in the remote directory dir.
func (c *Client) List(ctx context.Context, dir string) ([]string, error) {
	sc, err := c.SFTPClient(ctx)
	if err != nil {
		return nil, err
	}
	defer sc.Close()

	entries, err := sc.ReadDir(dir)
	if err != nil {
		return nil, &pacsyserr.SSHError{Message: "failed to list " + dir, Cause: err}
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return names, nil
}

// Remove deletes a remote file.
func (c *Client) Remove(ctx context.Context, remotePath string) error {
	sc, err := c.SFTPClient(ctx)
	if err != nil {
		return err
	}
	defer sc.Close()

	if err := sc.Remove(remotePath); err != nil {
		return &pacsyserr.SSHError{Message: "failed to remove " + remotePath, Cause: err}
	}
	return nil
}
