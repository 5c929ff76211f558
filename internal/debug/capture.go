// Package debug holds the last raw webhook payload for operational
// inspection. The slot is process-local and lost on restart; in multi-instance
// deployments each instance sees only its own deliveries. It sits entirely
// outside the transactional path and carries no correctness guarantees.
package debug

import (
	"encoding/json"
	"sync"
	"time"
)

type Snapshot struct {
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt time.Time       `json:"receivedAt"`
}

// Capture is a single-slot cache of the most recent raw webhook payload,
// overwritten on every delivery.
type Capture struct {
	mu   sync.RWMutex
	snap *Snapshot
}

func NewCapture() *Capture {
	return &Capture{}
}

func (c *Capture) Store(raw []byte) {
	buf := make([]byte, len(raw))
	copy(buf, raw)

	c.mu.Lock()
	c.snap = &Snapshot{Payload: buf, ReceivedAt: time.Now()}
	c.mu.Unlock()
}

// Last returns the most recent snapshot, or ok=false when nothing has ever
// been captured.
func (c *Capture) Last() (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.snap == nil {
		return Snapshot{}, false
	}
	return *c.snap, true
}
