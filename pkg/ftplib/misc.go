package ftplib

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
)

// DefaultFileMode is the permission mode used for every file ftpwarp
// creates: the output file and the blockmap sidecar here, and the CLI's
// log file.
const DefaultFileMode os.FileMode = 0644

// Size units, same scale the teacher's misc.go exposes.
const (
	B  = 1
	KB = 1024 * B
	MB = 1024 * KB
	GB = 1024 * MB
)

const (
	// DefaultBlocksize is the initial block size (bytes) used when a
	// blockmap does not yet exist.
	DefaultBlocksize = 1 * MB

	// DefaultMinBlocksPerSegment and DefaultMaxBlocksPerSegment bound the
	// per-worker slice size computed during allocation.
	DefaultMinBlocksPerSegment = 8
	DefaultMaxBlocksPerSegment = 128

	// DefaultConnections is the default worker-table size.
	DefaultConnections = 4
	// MaxConnections is the hard ceiling imposed by the single hex digit
	// worker id.
	MaxConnections = 16

	// DefaultKillSpeed is the default throughput floor, in MB/s.
	DefaultKillSpeed = 1.0

	// KillWarmupPeriod is how long a worker runs before it becomes
	// eligible for the kill-speed check.
	KillWarmupPeriod = 20 * time.Second

	// SpeedSampleWindow is how often a worker emits a SPEED_UPDATE.
	SpeedSampleWindow = 1 * time.Second

	// SpeedFIFODepth is the number of recent speed samples retained per
	// worker; the kill decision looks at the max of these.
	SpeedFIFODepth = 4

	// RecvTimeout bounds a single read from the FTP data stream.
	RecvTimeout = 30 * time.Second

	// QueueThrottleDepth: once the outbound queue holds more than this
	// many messages, the supervisor skips new allocations for a tick.
	QueueThrottleDepth = 100

	// MaxCoalescedFlush bounds how many bytes the supervisor accumulates
	// before forcing a write, regardless of how contiguous the stream is.
	MaxCoalescedFlush = 256 * MB

	// SupervisorPollInterval is the sleep at the bottom of the main loop.
	SupervisorPollInterval = 1 * time.Millisecond
)

// workerIDAlphabet enumerates the 16 legal worker identities, one hex digit
// each, matching the blockmap's PENDING alphabet.
const workerIDAlphabet = "0123456789ABCDEF"

// newCorrelationID returns a short id used to tag a run's log lines so
// concurrent downloads in the same log stream can be told apart.
func newCorrelationID() string {
	return uuid.NewString()[:8]
}

// NewCorrelationID exports newCorrelationID for callers outside this package
// that want to tag their own log output with the same per-run identifier a
// Supervisor would use internally, e.g. the CLI's log file prefix.
func NewCorrelationID() string {
	return newCorrelationID()
}

// formatETA renders remaining transfer time the way the blockmap's
// get_statistics operation always has: seconds under two minutes, minutes
// otherwise, with the same "done"/"infinite" sentinels.
func formatETA(remainingBlocks int, blocksize int64, speedBytesPerSec float64) string {
	if remainingBlocks == 0 {
		return "done"
	}
	if speedBytesPerSec <= 0 {
		return "infinite"
	}
	remainingBytes := float64(remainingBlocks) * float64(blocksize)
	seconds := remainingBytes / speedBytesPerSec
	if seconds < 120 {
		return fmt.Sprintf("%d seconds", int(seconds))
	}
	return fmt.Sprintf("%0.1f minutes", seconds/60)
}
