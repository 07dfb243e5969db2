package ftplib

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

// Block status alphabet. A worker id doubles as its own PENDING character,
// one of workerIDAlphabet, giving a hard ceiling of 16 concurrent workers.
const (
	StatusDownloaded byte = '*'
	StatusAvailable  byte = '.'
	StatusSaving     byte = '_'
)

// WorkerID identifies a worker slot by the hex digit it owns in the
// blockmap's PENDING alphabet.
type WorkerID byte

// Segment is the byte range a single Allocate call hands to one worker.
type Segment struct {
	Offset int64
	Blocks int
}

// Statistics is the tuple returned by GetStatistics.
type Statistics struct {
	NonDownloaded int
	Available     int
	TotalBlocks   int
	Blocksize     int64
	ETA           string
}

// Blockmap is the persisted per-block status array plus its blocksize. Every
// mutating method reads the sidecar file, mutates an in-memory copy, and
// writes the whole file back; there is no cache kept across calls, so a
// crash between operations always lands on some valid on-disk state.
type Blockmap struct {
	path string
}

// NewBlockmap returns a Blockmap whose sidecar lives at
// localPath + ".blockmap", the local output file's path with the
// conventional suffix.
func NewBlockmap(localPath string) *Blockmap {
	return &Blockmap{path: localPath + ".blockmap"}
}

type blockmapState struct {
	blocksize int64
	statuses  []byte
}

func isValidStatus(c byte) bool {
	if c == StatusDownloaded || c == StatusAvailable || c == StatusSaving {
		return true
	}
	return strings.IndexByte(workerIDAlphabet, c) >= 0
}

// Exists reports whether a sidecar blockmap file is present.
func (bm *Blockmap) Exists() bool {
	_, err := os.Stat(bm.path)
	return err == nil
}

func (bm *Blockmap) read() (*blockmapState, error) {
	raw, err := os.ReadFile(bm.path)
	if err != nil {
		return nil, err
	}
	lines := strings.SplitN(string(raw), "\n", 2)
	if len(lines) != 2 {
		return nil, &BlockmapError{Op: "read", Reason: "malformed blockmap file"}
	}
	blocksize, err := strconv.ParseInt(strings.TrimSpace(lines[0]), 10, 64)
	if err != nil {
		return nil, &BlockmapError{Op: "read", Reason: "invalid blocksize header"}
	}
	statuses := []byte(strings.TrimRight(lines[1], "\n"))
	return &blockmapState{blocksize: blocksize, statuses: statuses}, nil
}

func (bm *Blockmap) write(s *blockmapState) error {
	body := strconv.FormatInt(s.blocksize, 10) + "\n" + string(s.statuses)
	return os.WriteFile(bm.path, []byte(body), DefaultFileMode)
}

// Init creates a fresh all-AVAILABLE blockmap sized for fileSize blocks of
// initialBlocksize bytes if none exists yet. If a blockmap already exists,
// every character that is not DOWNLOADED is rewritten to AVAILABLE — PENDING
// and SAVING never survive a restart — and initialBlocksize is ignored in
// favor of the persisted header.
func (bm *Blockmap) Init(fileSize int64, initialBlocksize int64) error {
	if !bm.Exists() {
		if initialBlocksize <= 0 {
			return &BlockmapError{Op: "init", Reason: "blocksize must be positive"}
		}
		n := int(math.Ceil(float64(fileSize) / float64(initialBlocksize)))
		if n < 1 {
			n = 1
		}
		statuses := make([]byte, n)
		for i := range statuses {
			statuses[i] = StatusAvailable
		}
		return bm.write(&blockmapState{blocksize: initialBlocksize, statuses: statuses})
	}

	s, err := bm.read()
	if err != nil {
		return err
	}
	for i, c := range s.statuses {
		if c != StatusDownloaded {
			s.statuses[i] = StatusAvailable
		}
	}
	return bm.write(s)
}

// Allocate finds the longest contiguous run of AVAILABLE blocks and slices
// it across workerIDs in order. Per-worker slice size is
// clamp(ceil(runLength/len(workerIDs)), minBlocksPerSegment,
// maxBlocksPerSegment); workers are served in the given order until either
// all are served or the run is exhausted. Ties among equal-length runs are
// broken by smallest starting offset, matching a left-to-right string scan.
func (bm *Blockmap) Allocate(workerIDs []WorkerID, minBlocksPerSegment, maxBlocksPerSegment int) (map[WorkerID]Segment, error) {
	if len(workerIDs) == 0 {
		return nil, nil
	}

	s, err := bm.read()
	if err != nil {
		return nil, err
	}

	start, runLen := longestAvailableRun(s.statuses)
	if runLen == 0 {
		return nil, nil
	}

	k := len(workerIDs)
	sliceSize := int(math.Ceil(float64(runLen) / float64(k)))
	if sliceSize < minBlocksPerSegment {
		sliceSize = minBlocksPerSegment
	}
	if sliceSize > maxBlocksPerSegment {
		sliceSize = maxBlocksPerSegment
	}

	result := make(map[WorkerID]Segment)
	pos := start
	remaining := runLen
	for _, w := range workerIDs {
		if remaining <= 0 {
			break
		}
		n := sliceSize
		if n > remaining {
			n = remaining
		}
		for i := pos; i < pos+n; i++ {
			s.statuses[i] = byte(w)
		}
		result[w] = Segment{Offset: int64(pos) * s.blocksize, Blocks: n}
		pos += n
		remaining -= n
	}

	if err := bm.write(s); err != nil {
		return nil, err
	}
	return result, nil
}

// longestAvailableRun scans the statuses once, left to right, and returns
// the start index and length of the longest run of StatusAvailable; among
// runs of equal length the leftmost wins. This is the same run a
// descending-length str.find search would pick.
func longestAvailableRun(statuses []byte) (start, length int) {
	n := len(statuses)
	best := -1
	bestLen := 0
	run := 0
	for i := 0; i <= n; i++ {
		if i < n && statuses[i] == StatusAvailable {
			run++
		} else {
			if run > bestLen {
				bestLen = run
				best = i - run
			}
			run = 0
		}
	}
	if best < 0 {
		return 0, 0
	}
	return best, bestLen
}

// ChangeBlockRangeStatus rewrites the status of the blocks covering
// [offset, offset+blocks*blocksize) in a single operation. offset must be a
// multiple of the persisted blocksize and status must be in the alphabet.
func (bm *Blockmap) ChangeBlockRangeStatus(offset int64, blocks int, status byte) error {
	s, err := bm.read()
	if err != nil {
		return err
	}
	if offset%s.blocksize != 0 {
		return &BlockmapError{Op: "change_block_range_status", Reason: fmt.Sprintf("offset %d not a multiple of blocksize %d", offset, s.blocksize)}
	}
	if !isValidStatus(status) {
		return &BlockmapError{Op: "change_block_range_status", Reason: fmt.Sprintf("status %q outside alphabet", status)}
	}
	start := int(offset / s.blocksize)
	end := start + blocks
	if start < 0 || end > len(s.statuses) {
		return &BlockmapError{Op: "change_block_range_status", Reason: "range out of bounds"}
	}
	for i := start; i < end; i++ {
		s.statuses[i] = status
	}
	return bm.write(s)
}

// ChangeStatus globally replaces every occurrence of old with newStatus.
// Used on worker abort/finish to wipe a worker's PENDING claims back to
// AVAILABLE.
func (bm *Blockmap) ChangeStatus(old, newStatus byte) error {
	s, err := bm.read()
	if err != nil {
		return err
	}
	for i, c := range s.statuses {
		if c == old {
			s.statuses[i] = newStatus
		}
	}
	return bm.write(s)
}

// GetStatistics reports block counts and an ETA computed from the given
// instantaneous download speed (bytes/sec). ETA is "done" when nothing
// remains and "infinite" when speed is zero but blocks remain.
func (bm *Blockmap) GetStatistics(speedBytesPerSec float64) (Statistics, error) {
	s, err := bm.read()
	if err != nil {
		return Statistics{}, err
	}
	var nonDownloaded, available int
	for _, c := range s.statuses {
		if c != StatusDownloaded {
			nonDownloaded++
		}
		if c == StatusAvailable {
			available++
		}
	}
	return Statistics{
		NonDownloaded: nonDownloaded,
		Available:     available,
		TotalBlocks:   len(s.statuses),
		Blocksize:     s.blocksize,
		ETA:           formatETA(nonDownloaded, s.blocksize, speedBytesPerSec),
	}, nil
}

// IsComplete reports whether every block is DOWNLOADED.
func (bm *Blockmap) IsComplete() (bool, error) {
	s, err := bm.read()
	if err != nil {
		return false, err
	}
	for _, c := range s.statuses {
		if c != StatusDownloaded {
			return false, nil
		}
	}
	return true, nil
}

// Delete removes the sidecar file. Missing-file is not an error.
func (bm *Blockmap) Delete() error {
	err := os.Remove(bm.path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Blocksize returns the persisted blocksize, or 0 if no blockmap exists yet.
func (bm *Blockmap) Blocksize() (int64, error) {
	s, err := bm.read()
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	return s.blocksize, nil
}
