package pool

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
)

type counters struct {
	created         atomic.Uint64
	reused          atomic.Uint64
	destroyed       atomic.Uint64
	connectTimeouts atomic.Uint64
	readTimeouts    atomic.Uint64
}

// Stats is a snapshot of pool activity since creation.
type Stats struct {
	Created         uint64  `json:"created"`
	Reused          uint64  `json:"reused"`
	Destroyed       uint64  `json:"destroyed"`
	ConnectTimeouts uint64  `json:"connect_timeouts"`
	ReadTimeouts    uint64  `json:"read_timeouts"`
	ReuseRate       float64 `json:"reuse_rate"`
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() Stats {
	s := Stats{
		Created:         p.stats.created.Load(),
		Reused:          p.stats.reused.Load(),
		Destroyed:       p.stats.destroyed.Load(),
		ConnectTimeouts: p.stats.connectTimeouts.Load(),
		ReadTimeouts:    p.stats.readTimeouts.Load(),
	}
	if total := s.Created + s.Reused; total > 0 {
		s.ReuseRate = float64(s.Reused) / float64(total)
	}
	return s
}

// String returns the stats as indented JSON.
func (s Stats) String() string {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Sprintf("Stats{error: %v}", err)
	}
	return string(data)
}
