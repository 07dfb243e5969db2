package ftplib

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
)

// TestWalkerDownloadsNestedTree is scenario S8: a directory with a nested
// subdirectory must be mirrored locally and every plain file fetched.
func TestWalkerDownloadsNestedTree(t *testing.T) {
	root := patternContent(512 * 1024)
	nested := patternContent(256 * 1024)

	host, port, cleanup := startMockFTPServer(t, func(fs afero.Fs) {
		_ = afero.WriteFile(fs, "/testfile.txt", root, 0644)
		_ = fs.MkdirAll("/a", 0755)
		_ = afero.WriteFile(fs, "/a/testfile2.txt", nested, 0644)
	})
	defer cleanup()

	dir := t.TempDir()

	sup := NewSupervisor(host, port)
	sup.Connections = 1
	sup.MinBlocksPerSegment = 1
	sup.MaxBlocksPerSegment = 1
	sup.Blocksize = MB

	w := NewWalker(sup)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := w.Walk(ctx, "/", dir); err != nil {
		t.Fatalf("Walk: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(dir, "testfile.txt"))
	if err != nil {
		t.Fatalf("read root file: %v", err)
	}
	if !bytes.Equal(got, root) {
		t.Fatal("root file content mismatch")
	}

	gotNested, err := os.ReadFile(filepath.Join(dir, "a", "testfile2.txt"))
	if err != nil {
		t.Fatalf("read nested file: %v", err)
	}
	if !bytes.Equal(gotNested, nested) {
		t.Fatal("nested file content mismatch")
	}
}

// TestWalkerSinglePlainFile covers the non-directory branch: remotePath
// names a file directly, so Walk must delegate straight to DownloadFile.
func TestWalkerSinglePlainFile(t *testing.T) {
	content := patternContent(128 * 1024)
	host, port, cleanup := startMockFTPServer(t, func(fs afero.Fs) {
		_ = afero.WriteFile(fs, "/only.bin", content, 0644)
	})
	defer cleanup()

	dir := t.TempDir()
	localPath := filepath.Join(dir, "only.bin")

	sup := NewSupervisor(host, port)
	sup.Connections = 1
	sup.Blocksize = MB

	w := NewWalker(sup)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := w.Walk(ctx, "/only.bin", localPath); err != nil {
		t.Fatalf("Walk: %v", err)
	}

	got, err := os.ReadFile(localPath)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatal("content mismatch")
	}
}
