// Package display implements the C6 refresh hook: a callback invoked once
// per supervisor tick that renders progress without blocking the download
// loop. Three modes are supported, matching the CLI's --display_mode flag:
// quiet (nothing), compact (one rewritten status line), and full (per-file
// mpb progress bars sized to the terminal).
package display

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/vbauerster/mpb/v8"
	"golang.org/x/term"

	"github.com/ftpwarp/ftpwarp/cmd/common"
	"github.com/ftpwarp/ftpwarp/pkg/ftplib"
)

// Mode selects how progress is rendered.
type Mode string

const (
	ModeQuiet   Mode = "quiet"
	ModeCompact Mode = "compact"
	ModeFull    Mode = "full"
)

// defaultWidth and defaultHeight are used when the terminal size cannot be
// determined, per the spec's "defaults to 24x80" requirement.
const (
	defaultWidth  = 80
	defaultHeight = 24
)

// Display renders supervisor progress. The zero value is not usable; use
// New. A Display is reused across files downloaded in one run (e.g. a
// directory walk) and resets its per-file bars when the remote path it is
// tracking changes.
type Display struct {
	mode Mode
	out  io.Writer

	width, height int

	curPath  string
	progress *mpb.Progress
	dbar     *mpb.Bar
	cbar     *mpb.Bar
}

// New returns a Display for mode, writing to stdout. An unrecognized mode
// behaves like ModeCompact.
func New(mode Mode) *Display {
	w, h, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 || h <= 0 {
		w, h = defaultWidth, defaultHeight
	}
	return &Display{mode: mode, out: os.Stdout, width: w, height: h}
}

// Refresh is an ftplib.RefreshFunc: it is invoked once per supervisor tick
// and must return quickly, since the supervisor's main loop blocks on it.
func (d *Display) Refresh(sup *ftplib.Supervisor, bm *ftplib.Blockmap, remotePath string) {
	switch d.mode {
	case ModeQuiet:
		return
	case ModeFull:
		d.refreshFull(sup, bm, remotePath)
	default:
		d.refreshCompact(sup, bm, remotePath)
	}
}

// Close flushes and releases any terminal resources (the mpb progress
// container in full mode). Call once after the last file of a run.
func (d *Display) Close() {
	if d.progress != nil {
		d.progress.Wait()
		d.progress = nil
		d.dbar, d.cbar = nil, nil
	}
}

func (d *Display) refreshCompact(sup *ftplib.Supervisor, bm *ftplib.Blockmap, remotePath string) {
	stats, err := bm.GetStatistics(sup.TotalSpeed())
	if err != nil {
		return
	}
	total := int64(stats.TotalBlocks) * stats.Blocksize
	done := int64(stats.TotalBlocks-stats.NonDownloaded) * stats.Blocksize
	fmt.Fprintf(d.out, "\r%s  %s/%s  %s/s  ETA %s\033[K",
		truncate(remotePath, d.width/3),
		humanize.Bytes(uint64(done)),
		humanize.Bytes(uint64(total)),
		humanize.Bytes(uint64(sup.TotalSpeed())),
		stats.ETA,
	)
}

func (d *Display) refreshFull(sup *ftplib.Supervisor, bm *ftplib.Blockmap, remotePath string) {
	stats, err := bm.GetStatistics(sup.TotalSpeed())
	if err != nil {
		return
	}
	total := int64(stats.TotalBlocks) * stats.Blocksize

	if d.curPath != remotePath || d.progress == nil {
		d.Close()
		d.progress = mpb.New(mpb.WithWidth(d.width), mpb.WithOutput(d.out))
		d.dbar, d.cbar = common.InitBars(d.progress, truncate(remotePath, d.width/2)+" ", total)
		d.curPath = remotePath
	}

	received := int64(stats.TotalBlocks-stats.Available) * stats.Blocksize
	downloaded := int64(stats.TotalBlocks-stats.NonDownloaded) * stats.Blocksize
	if received > total {
		received = total
	}
	if downloaded > total {
		downloaded = total
	}
	d.dbar.SetCurrent(received)
	d.cbar.SetCurrent(downloaded)
}

func truncate(s string, n int) string {
	if n < 4 || len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
