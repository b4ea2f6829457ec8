// Package gc implements mark-and-sweep over continuation tickets.
//
// Every access to a live execution refreshes the ticket's marker (Update).
// Mark flags tickets idle for longer than the expiration; Sweep hands each
// flagged ticket to a removal callback exactly once. Swept markers stay
// around so stale tickets keep being recognized until Purge forgets them.
package gc

import (
	"sync"
	"time"

	"github.com/petrijr/pageflow/pkg/api"
)

type marker struct {
	ticket       string
	lastModified time.Time
	enabled      bool
	swept        bool
	sweptAt      time.Time
}

// Collector owns the markers of all tickets. Markers live in an arena
// indexed by ticket, so callbacks run by Sweep may freely call back into the
// collector.
type Collector struct {
	mu         sync.Mutex
	expiration time.Duration
	clock      api.Clock

	index   map[string]int
	markers []*marker
	free    []int
}

// New creates a collector that marks tickets idle for longer than
// expiration. A nil clock means the system clock.
func New(expiration time.Duration, clock api.Clock) *Collector {
	if clock == nil {
		clock = api.SystemClock{}
	}
	return &Collector{
		expiration: expiration,
		clock:      clock,
		index:      make(map[string]int),
	}
}

func (c *Collector) Expiration() time.Duration { return c.expiration }

// Len returns the number of markers held, swept ones included.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.index)
}

// Update records activity for ticket, creating its marker on first use. It
// never clears the enabled or swept flags.
func (c *Collector) Update(ticket string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if i, ok := c.index[ticket]; ok {
		c.markers[i].lastModified = now
		return
	}

	m := &marker{ticket: ticket, lastModified: now}
	if n := len(c.free); n > 0 {
		i := c.free[n-1]
		c.free = c.free[:n-1]
		c.markers[i] = m
		c.index[ticket] = i
		return
	}
	c.index[ticket] = len(c.markers)
	c.markers = append(c.markers, m)
}

// IsMarked reports whether ticket has been flagged for removal. It stays
// true after the ticket is swept.
func (c *Collector) IsMarked(ticket string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i, ok := c.index[ticket]; ok {
		return c.markers[i].enabled
	}
	return false
}

// IsSwept reports whether ticket has been handed to a removal callback.
func (c *Collector) IsSwept(ticket string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i, ok := c.index[ticket]; ok {
		return c.markers[i].swept
	}
	return false
}

// Mark flags every unswept ticket idle for longer than the expiration and
// returns how many were newly flagged.
func (c *Collector) Mark() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	n := 0
	for _, m := range c.markers {
		if m == nil || m.swept || m.enabled {
			continue
		}
		if now.Sub(m.lastModified) > c.expiration {
			m.enabled = true
			n++
		}
	}
	return n
}

// Sweep calls remove once for every flagged ticket that has not been swept
// before and returns the number of tickets swept.
//
// A flagged ticket that was updated after Mark and is no longer idle is
// unflagged instead. Callbacks run after the collector's lock is released.
func (c *Collector) Sweep(remove func(ticket string)) int {
	c.mu.Lock()
	now := c.clock.Now()
	var victims []string
	for _, m := range c.markers {
		if m == nil || m.swept || !m.enabled {
			continue
		}
		if now.Sub(m.lastModified) <= c.expiration {
			m.enabled = false
			continue
		}
		m.swept = true
		m.sweptAt = now
		victims = append(victims, m.ticket)
	}
	c.mu.Unlock()

	if remove != nil {
		for _, ticket := range victims {
			remove(ticket)
		}
	}
	return len(victims)
}

// Purge forgets swept tickets whose sweep happened more than retention ago
// and returns how many were forgotten.
func (c *Collector) Purge(retention time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	n := 0
	for i, m := range c.markers {
		if m == nil || !m.swept || now.Sub(m.sweptAt) <= retention {
			continue
		}
		delete(c.index, m.ticket)
		c.markers[i] = nil
		c.free = append(c.free, i)
		n++
	}
	return n
}
