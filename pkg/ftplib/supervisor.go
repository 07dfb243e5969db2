package ftplib

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

// RefreshFunc is invoked once per supervisor tick so a display layer can
// render progress. It must be fast and non-blocking; the default is a
// no-op.
type RefreshFunc func(sup *Supervisor, bm *Blockmap, remotePath string)

// Supervisor owns the blockmap, the output file, both message queues, and
// the worker table for one file download at a time. It is the single
// writer of the blockmap and the output file; workers communicate with it
// only through messages, never by touching either directly.
type Supervisor struct {
	Host     string
	Port     int
	Username string
	Password string
	UseTLS   bool

	Connections         int
	MinBlocksPerSegment int
	MaxBlocksPerSegment int
	Blocksize           int64
	KillSpeed           float64 // MB/s; 0 disables the kill policy

	Logger  Logger
	Refresh RefreshFunc

	workers  VMap[WorkerID, *WorkerRecord]
	inbound  *InboundQueue
	outbound *OutboundQueue
	aborted  int32
}

// NewSupervisor returns a Supervisor ready to drive downloads against host.
// Connection and policy fields may be adjusted on the returned value before
// the first call to DownloadFile.
func NewSupervisor(host string, port int) *Supervisor {
	return &Supervisor{
		Host:                host,
		Port:                port,
		Username:            "anonymous",
		Password:            "password",
		Connections:         DefaultConnections,
		MinBlocksPerSegment: DefaultMinBlocksPerSegment,
		MaxBlocksPerSegment: DefaultMaxBlocksPerSegment,
		Blocksize:           DefaultBlocksize,
		KillSpeed:           DefaultKillSpeed,
		Logger:              nopLogger{},
	}
}

func (s *Supervisor) logger() Logger {
	if s.Logger == nil {
		return nopLogger{}
	}
	return s.Logger
}

// AbortAll sets the global abort flag and kills every ACTIVE worker. The
// main loop and the directory walker observe this at their next check.
func (s *Supervisor) AbortAll() {
	atomic.StoreInt32(&s.aborted, 1)
	if s.inbound == nil {
		return
	}
	ids, recs := s.workers.Dump()
	for i, id := range ids {
		if recs[i].State == WorkerActive {
			recs[i].State = WorkerAborting
			s.workers.Set(id, recs[i])
			s.inbound.Push(Message{Kind: MsgKill, WorkerID: id})
		}
	}
}

// AbortWorker kills one worker without setting the global abort flag.
func (s *Supervisor) AbortWorker(id WorkerID) {
	rec := s.workers.Get(id)
	if rec == nil || rec.State != WorkerActive {
		return
	}
	rec.State = WorkerAborting
	s.workers.Set(id, rec)
	s.inbound.Push(Message{Kind: MsgKill, WorkerID: id})
}

// isAborted reports whether AbortAll was called for the in-flight download.
func (s *Supervisor) isAborted() bool {
	return atomic.LoadInt32(&s.aborted) == 1
}

// TotalSpeed returns the aggregate instantaneous speed across all workers,
// the mean of each active worker's own speed FIFO. Used by the display
// layer for a throughput line; not itself part of the kill decision.
func (s *Supervisor) TotalSpeed() float64 {
	_, recs := s.workers.Dump()
	var total float64
	for _, rec := range recs {
		var sum float64
		var n int
		for _, sample := range rec.SpeedFIFO {
			if sample > 0 {
				sum += sample
				n++
			}
		}
		if n > 0 {
			total += sum / float64(n)
		}
	}
	return total
}

// dial opens and authenticates a fresh control connection. Each worker gets
// its own; none are shared.
func (s *Supervisor) dial(ctx context.Context) (Transport, error) {
	t := NewFTPTransport(s.Host, s.Port, s.UseTLS)
	if err := t.Connect(ctx); err != nil {
		return nil, err
	}
	if err := t.Login(s.Username, s.Password); err != nil {
		t.Close()
		return nil, err
	}
	return t, nil
}

// CleanLocalFile deletes both the output file and its sidecar blockmap. It
// needs no file size or connection, so it is a package-level operation
// usable before a Supervisor exists, matching the --clean flag's use before
// any blockmap or connection is in play.
func CleanLocalFile(remotePath, localPath string) error {
	bm := NewBlockmap(localPath)
	if err := bm.Delete(); err != nil {
		return err
	}
	if err := os.Remove(localPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// DownloadFile drives one file end to end: resolve the local path, apply
// --clean, short-circuit an already-complete download, touch the output
// file, probe the remote size, initialize the blockmap, and run the main
// loop until completion or abort.
func (s *Supervisor) DownloadFile(ctx context.Context, remotePath, localPath string, clean bool) error {
	if info, err := os.Stat(localPath); err == nil && info.IsDir() {
		localPath = filepath.Join(localPath, path.Base(remotePath))
	}

	if clean {
		if err := CleanLocalFile(remotePath, localPath); err != nil {
			return err
		}
	}

	bm := NewBlockmap(localPath)

	if !bm.Exists() {
		if info, err := os.Stat(localPath); err == nil && info.Size() > 0 {
			return nil // previously completed; nothing to do
		}
	}

	f, err := os.OpenFile(localPath, os.O_CREATE|os.O_RDWR, DefaultFileMode)
	if err != nil {
		return NewPermanentError("create_output", err)
	}
	f.Close()

	probe, err := s.dial(ctx)
	if err != nil {
		return err
	}
	size, err := probe.Size(remotePath)
	probe.Close()
	if err != nil {
		return err
	}

	if err := bm.Init(size, s.Blocksize); err != nil {
		return err
	}

	return s.runMainLoop(ctx, bm, remotePath, localPath)
}

func (s *Supervisor) runMainLoop(ctx context.Context, bm *Blockmap, remotePath, localPath string) error {
	n := s.Connections
	if n < 1 {
		n = 1
	}
	if n > MaxConnections {
		n = MaxConnections
	}

	s.workers.Make()
	s.inbound = NewInboundQueue()
	s.outbound = NewOutboundQueue()
	var wg sync.WaitGroup
	defer wg.Wait()

	for i := 0; i < n; i++ {
		id := WorkerID(workerIDAlphabet[i])
		s.workers.Set(id, &WorkerRecord{ID: id, State: WorkerIdle})
	}

	blocksize, err := bm.Blocksize()
	if err != nil {
		return err
	}

	for {
		complete, err := bm.IsComplete()
		if err != nil {
			return err
		}
		if complete || s.isAborted() || ctx.Err() != nil {
			break
		}

		throttled := s.outbound.Len() > QueueThrottleDepth

		// Note which busy workers had already exited before the drain below.
		exited := make(map[WorkerID]bool)
		preIDs, preRecs := s.workers.Dump()
		for i, id := range preIDs {
			if preRecs[i].State != WorkerIdle && preRecs[i].Done != nil {
				select {
				case <-preRecs[i].Done:
					exited[id] = true
				default:
				}
			}
		}

		// Drain every already-queued high-priority message before touching
		// the worker table below. A worker that finishes normally pushes
		// MsgFinished/MsgAborted and only then closes its done channel, so
		// any message from a worker noted as exited above is already queued
		// and handled here. The done-channel liveness check further down
		// only considers those workers, so it only ever fires for a worker
		// that died silently with no message at all, never as a stale echo
		// of a worker id a fresh allocation has since reused.
		for {
			msg, ok := s.outbound.Peek()
			if !ok || !msg.isHighPriority() {
				break
			}
			s.outbound.Pop()
			switch msg.Kind {
			case MsgDataHigh:
				if err := bm.ChangeBlockRangeStatus(msg.Offset, 1, StatusSaving); err != nil {
					return err
				}
			case MsgAborted, MsgFinished:
				if err := bm.ChangeStatus(byte(msg.WorkerID), StatusAvailable); err != nil {
					return err
				}
				rec := s.workers.Get(msg.WorkerID)
				rec.State = WorkerIdle
				rec.SpeedFIFO = [SpeedFIFODepth]float64{}
				rec.Done = nil
				s.workers.Set(msg.WorkerID, rec)
			case MsgSpeedUpdate:
				rec := s.workers.Get(msg.WorkerID)
				rec.PushSpeedSample(msg.Speed)
				s.workers.Set(msg.WorkerID, rec)
			}
		}

		now := time.Now()
		ids, recs := s.workers.Dump()
		var idle []WorkerID
		for i, id := range ids {
			rec := recs[i]

			// A worker whose done channel had closed before the message
			// drain above but whose state is still Active/Aborting after it
			// never got to emit FINISHED or ABORTED: it died silently (panic
			// recovered by safeGo, or a goroutine that simply returned
			// without reaching its own emit calls). Treat that the same
			// as an ABORTED reclaim.
			if rec.State != WorkerIdle && exited[id] {
				bm.ChangeStatus(byte(id), StatusAvailable)
				rec.State = WorkerIdle
				rec.SpeedFIFO = [SpeedFIFODepth]float64{}
				rec.Done = nil
				s.workers.Set(id, rec)
				idle = append(idle, id)
				continue
			}

			if rec.State == WorkerActive && s.KillSpeed > 0 &&
				now.Sub(rec.StartedAt) >= KillWarmupPeriod && rec.WarmedUp() {
				if rec.PeakSpeed()/float64(MB) < s.KillSpeed {
					s.AbortWorker(id)
				}
			}

			if rec.State == WorkerIdle {
				idle = append(idle, id)
			}
		}

		if !throttled && len(idle) > 0 {
			segs, err := bm.Allocate(idle, s.MinBlocksPerSegment, s.MaxBlocksPerSegment)
			if err != nil {
				return err
			}
			for id, seg := range segs {
				rec := s.workers.Get(id)
				rec.State = WorkerActive
				rec.StartedAt = time.Now()
				rec.SpeedFIFO = [SpeedFIFODepth]float64{}
				done := make(chan struct{})
				rec.Done = done
				s.workers.Set(id, rec)

				idc, segc := id, seg
				wg.Add(1)
				safeGo(s.logger(), &wg, fmt.Sprintf("worker-%c", byte(idc)), done, func() {
					runSegment(ctx, s.dial, remotePath, segc, blocksize, idc, s.inbound, s.outbound, s.logger())
				})
			}
		}

		var pending []byte
		var pendingStart int64
		var nextExpected int64
		var blocksWritten int
		first := true
		for {
			msg, ok := s.outbound.Peek()
			if !ok || msg.isHighPriority() {
				break
			}
			if !first && msg.Offset != nextExpected {
				break
			}
			if int64(len(pending)+len(msg.Data)) > MaxCoalescedFlush {
				break
			}
			s.outbound.Pop()
			if first {
				pendingStart = msg.Offset
				first = false
			}
			pending = append(pending, msg.Data...)
			nextExpected = msg.Offset + blocksize
			blocksWritten++
		}
		if len(pending) > 0 {
			if err := writeAt(localPath, pendingStart, pending); err != nil {
				return NewPermanentError("flush", err)
			}
			if err := bm.ChangeBlockRangeStatus(pendingStart, blocksWritten, StatusDownloaded); err != nil {
				return err
			}
		}

		if s.Refresh != nil {
			s.Refresh(s, bm, remotePath)
		}

		time.Sleep(SupervisorPollInterval)
	}

	if s.isAborted() || ctx.Err() != nil {
		return nil // partial state preserved on disk for a later resume
	}
	return bm.Delete()
}

// writeAt reopens the output file, writes data at offset, and closes it —
// the output file is never held open across ticks, only for the duration of
// one coalesced write.
func writeAt(localPath string, offset int64, data []byte) error {
	f, err := os.OpenFile(localPath, os.O_WRONLY, DefaultFileMode)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteAt(data, offset)
	return err
}
