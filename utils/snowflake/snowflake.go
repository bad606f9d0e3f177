// Package snowflake generates unique, time-ordered int64 IDs for chat
// messages. Because the timestamp occupies the high bits, comparing two IDs
// compares their creation instants, which is what message cursor pagination
// relies on.
package snowflake

import (
	"errors"
	"sync"
	"time"
)

const (
	// Epoch is the custom epoch (January 1, 2024 00:00:00 UTC) in ms.
	Epoch int64 = 1704067200000

	workerIDBits uint8 = 10
	sequenceBits uint8 = 12

	maxWorkerID  int64 = -1 ^ (-1 << workerIDBits)
	sequenceMask int64 = -1 ^ (-1 << sequenceBits)

	workerIDShift  = sequenceBits
	timestampShift = sequenceBits + workerIDBits
)

var (
	ErrInvalidWorkerID     = errors.New("worker ID exceeds maximum value")
	ErrClockMovedBackwards = errors.New("clock moved backwards")
)

// Generator produces snowflake IDs for a single worker.
type Generator struct {
	mu sync.Mutex

	workerID      int64
	sequence      int64
	lastTimestamp int64
}

// NewGenerator creates a generator for the given worker ID (0..1023).
func NewGenerator(workerID int64) (*Generator, error) {
	if workerID < 0 || workerID > maxWorkerID {
		return nil, ErrInvalidWorkerID
	}
	return &Generator{workerID: workerID, lastTimestamp: -1}, nil
}

// Next returns the next ID. It blocks for up to a millisecond when the
// per-millisecond sequence is exhausted.
func (g *Generator) Next() (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now().UnixMilli()
	if now < g.lastTimestamp {
		return 0, ErrClockMovedBackwards
	}

	if now == g.lastTimestamp {
		g.sequence = (g.sequence + 1) & sequenceMask
		if g.sequence == 0 {
			for now <= g.lastTimestamp {
				now = time.Now().UnixMilli()
			}
		}
	} else {
		g.sequence = 0
	}
	g.lastTimestamp = now

	id := (now-Epoch)<<timestampShift | g.workerID<<workerIDShift | g.sequence
	return id, nil
}

// Timestamp extracts the creation time encoded in id.
func Timestamp(id int64) time.Time {
	ms := (id >> timestampShift) + Epoch
	return time.UnixMilli(ms)
}
