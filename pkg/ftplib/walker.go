package ftplib

import (
	"context"
	"os"
	"path"
	"path/filepath"
)

// Walker recursively enumerates a remote path and hands each plain file to
// a Supervisor, grounded on the original download() recursion and on
// protocol_ftp.go's NOT_A_DIRECTORY convention: a failed ChangeDir means
// remotePath names a file, not a directory, and recursion stops there.
type Walker struct {
	Supervisor *Supervisor
	Clean      bool
}

// NewWalker returns a Walker that drives downloads through sup.
func NewWalker(sup *Supervisor) *Walker {
	return &Walker{Supervisor: sup}
}

// Walk downloads remotePath under localPath. If remotePath is a directory
// (LIST succeeds), localPath is created and every entry is recursed into in
// turn; otherwise remotePath is downloaded as a single file. The abort flag
// is checked between every entry so a global AbortAll stops the recursion
// promptly rather than only between files already queued.
func (w *Walker) Walk(ctx context.Context, remotePath, localPath string) error {
	t, err := w.Supervisor.dial(ctx)
	if err != nil {
		return err
	}
	entries, err := t.List(remotePath)
	t.Close()

	if err != nil {
		if err == ErrNotADirectory {
			return w.Supervisor.DownloadFile(ctx, remotePath, localPath, w.Clean)
		}
		return err
	}

	if err := os.MkdirAll(localPath, 0755); err != nil {
		return &BlockmapError{Op: "walk", Reason: "local path exists and is not a directory"}
	}

	for _, name := range entries {
		if w.Supervisor.isAborted() || ctx.Err() != nil {
			return nil
		}
		childRemote := path.Join(remotePath, name)
		childLocal := filepath.Join(localPath, name)
		if err := w.Walk(ctx, childRemote, childLocal); err != nil {
			return err
		}
	}
	return nil
}
