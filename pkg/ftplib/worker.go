package ftplib

import (
	"context"
	"errors"
	"io"
	"time"
)

// WorkerState is a worker slot's position in the
// IDLE -> ACTIVE -> ABORTING -> IDLE state machine.
type WorkerState int

const (
	WorkerIdle WorkerState = iota
	WorkerActive
	WorkerAborting
)

// WorkerRecord is the supervisor's bookkeeping for one worker-table slot.
// Only the supervisor ever writes these fields; a worker's own state change
// reaches the supervisor indirectly, via MsgAborted/MsgFinished.
type WorkerRecord struct {
	ID        WorkerID
	State     WorkerState
	StartedAt time.Time
	SpeedFIFO [SpeedFIFODepth]float64
	Done      chan struct{}
}

// PushSpeedSample inserts s at the front of the FIFO, dropping the oldest
// sample, matching the reference design's fixed-depth-4 window.
func (wr *WorkerRecord) PushSpeedSample(s float64) {
	for i := SpeedFIFODepth - 1; i > 0; i-- {
		wr.SpeedFIFO[i] = wr.SpeedFIFO[i-1]
	}
	wr.SpeedFIFO[0] = s
}

// WarmedUp reports whether all SpeedFIFODepth slots hold a real sample
// (none are the zero sentinel), the reference design's exact condition for
// kill eligibility.
func (wr *WorkerRecord) WarmedUp() bool {
	for _, s := range wr.SpeedFIFO {
		if s == 0 {
			return false
		}
	}
	return true
}

// PeakSpeed returns the max of the FIFO: the kill decision deliberately
// uses max, not mean, so a single good sample saves a worker from being
// killed.
func (wr *WorkerRecord) PeakSpeed() float64 {
	peak := wr.SpeedFIFO[0]
	for _, s := range wr.SpeedFIFO[1:] {
		if s > peak {
			peak = s
		}
	}
	return peak
}

// TransportFactory builds and connects a fresh Transport for one worker's
// segment. Each worker owns its own control+data connection; none are
// shared, so no locking is needed around the connection itself.
type TransportFactory func(ctx context.Context) (Transport, error)

// runSegment is a worker's entire lifetime: open a connection, RETR from
// offset, and emit DATA_HIGH/DATA_LOW/SPEED_UPDATE messages until either the
// segment is fully received, the stream EOFs early, or a kill arrives for
// this worker id. It always ends by emitting exactly one of
// MsgAborted/MsgFinished.
func runSegment(ctx context.Context, newTransport TransportFactory, remotePath string, seg Segment, blocksize int64, id WorkerID, inbound *InboundQueue, outbound *OutboundQueue, logger Logger) {
	t, err := newTransport(ctx)
	if err != nil {
		logger.Warning("worker %c: connect failed: %v", byte(id), err)
		outbound.Push(Message{Kind: MsgFinished, WorkerID: id})
		return
	}
	defer t.Close()

	stream, err := t.RetrFrom(remotePath, seg.Offset)
	if err != nil {
		logger.Warning("worker %c: retr failed: %v", byte(id), err)
		outbound.Push(Message{Kind: MsgFinished, WorkerID: id})
		return
	}
	defer stream.Close()

	expectedBytes := int64(seg.Blocks) * blocksize
	var received int64
	var buf []byte
	chunk := make([]byte, blocksize*8)
	curOffset := seg.Offset
	lastSample := time.Now()
	var sinceSample int64

	for received < expectedBytes {
		if inbound.TakeFor(id) {
			outbound.Push(Message{Kind: MsgAborted, WorkerID: id})
			return
		}

		n, readErr := stream.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			sinceSample += int64(n)
		}

		if elapsed := time.Since(lastSample); elapsed >= SpeedSampleWindow {
			outbound.Push(Message{
				Kind:     MsgSpeedUpdate,
				WorkerID: id,
				Speed:    float64(sinceSample) / elapsed.Seconds(),
			})
			sinceSample = 0
			lastSample = time.Now()
		}

		eof := errors.Is(readErr, io.EOF)
		for int64(len(buf)) >= blocksize || (eof && len(buf) > 0) {
			blockLen := blocksize
			if int64(len(buf)) < blockLen {
				blockLen = int64(len(buf))
			}
			block := append([]byte(nil), buf[:blockLen]...)
			buf = buf[blockLen:]

			outbound.Push(Message{Kind: MsgDataHigh, WorkerID: id, Offset: curOffset})
			outbound.Push(Message{Kind: MsgDataLow, WorkerID: id, Offset: curOffset, Data: block})

			curOffset += blocksize
			received += int64(len(block))
		}

		if readErr != nil {
			if !eof {
				logger.Warning("worker %c: recv error: %v", byte(id), readErr)
			}
			break
		}
	}

	outbound.Push(Message{Kind: MsgFinished, WorkerID: id})
}
