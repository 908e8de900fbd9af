// Package cache implements the fixed-size, LRU-approximating buffer cache
// that mediates every sector access. It is grounded on two sources: the
// original filesys/cache.c (for the clock-scan/accessed-bit/dirty-writeback
// control flow) and fs/pkg/inode/store/cache.go's doubly-linked-list
// LRU Cache (for the Go idiom of tracking MRU order via container/list
// rather than the raw C intrusive list).
package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/weberc2/blockfs/pkg/device"
	"github.com/weberc2/blockfs/pkg/types"
)

type slot struct {
	sector   types.Sector
	data     [types.SectorSize]byte
	accessed bool
	dirty    bool
	loading  bool
	pinCount int
}

// Slot is the pinned handle returned by Acquire. Callers may read or write
// Data only while holding the Slot; they must call Cache.Release exactly
// once per Acquire.
type Slot struct {
	s *slot
}

// Data exposes the slot's sector-sized buffer for in-place reads/writes.
func (h Slot) Data() *[types.SectorSize]byte { return &h.s.data }

// Sector reports which sector this slot currently holds.
func (h Slot) Sector() types.Sector { return h.s.sector }

// Cache is the fixed CacheSize-slot pool. One mutex guards every field
// below; one condition variable signals both slot availability (on
// release) and a new read-ahead nomination, matching the specification's
// single-monitor-lock concurrency contract.
type Cache struct {
	device device.BlockDevice

	mu   sync.Mutex
	cond *sync.Cond

	slots    *list.List               // MRU at the back, LRU-ish at the front
	elemOf   map[*slot]*list.Element
	bySector map[types.Sector]*list.Element

	nominated     types.Sector
	hasNomination bool

	closed     bool
	shutdownCh chan struct{}
	wg         sync.WaitGroup
}

// New builds a Cache of exactly CacheSize slots over dev and starts the
// read-ahead and write-back background goroutines.
func New(dev device.BlockDevice) *Cache {
	c := &Cache{
		device:   dev,
		slots:    list.New(),
		elemOf:   make(map[*slot]*list.Element, types.CacheSize),
		bySector: make(map[types.Sector]*list.Element, types.CacheSize),
	}
	c.cond = sync.NewCond(&c.mu)
	for i := 0; i < types.CacheSize; i++ {
		s := &slot{sector: types.NoSector}
		elem := c.slots.PushBack(s)
		c.elemOf[s] = elem
	}
	c.wg.Add(2)
	go c.readAheadLoop()
	go c.writeBackLoop()
	return c
}

// Acquire returns a pinned Slot holding sector's current contents,
// evicting an unpinned victim via clock-style approximation if the sector
// is not already cached.
func (c *Cache) Acquire(sector types.Sector) Slot {
	c.mu.Lock()
	for {
		if elem, ok := c.bySector[sector]; ok {
			s := elem.Value.(*slot)
			if s.loading {
				c.cond.Wait()
				continue
			}
			s.pinCount++
			s.accessed = true
			c.slots.MoveToBack(elem)
			c.mu.Unlock()
			return Slot{s}
		}

		elem := c.scanVictim()
		if elem == nil {
			c.cond.Wait()
			continue
		}
		s := elem.Value.(*slot)
		oldSector := s.sector
		oldDirty := s.dirty
		oldData := s.data

		delete(c.bySector, oldSector)
		s.loading = true
		s.sector = sector
		s.pinCount = 1
		s.accessed = true
		s.dirty = false
		c.bySector[sector] = elem
		c.slots.MoveToBack(elem)
		c.mu.Unlock()

		if oldDirty {
			c.device.WriteSector(oldSector, &oldData)
		}
		var buf [types.SectorSize]byte
		c.device.ReadSector(sector, &buf)

		c.mu.Lock()
		s.data = buf
		s.loading = false
		c.cond.Broadcast()
		c.mu.Unlock()
		return Slot{s}
	}
}

// scanVictim implements the clock-style scan described in the
// specification: walk the slots in list order, clearing the accessed bit
// of any unpinned slot it's set on, and return the first unpinned slot
// found with the bit already clear. Two passes guarantee that any
// unpinned slot is found (the first pass clears bits, the second catches
// what the first cleared); if every slot is pinned, neither pass finds a
// victim and the caller waits and rescans rather than spinning.
func (c *Cache) scanVictim() *list.Element {
	for pass := 0; pass < 2; pass++ {
		for e := c.slots.Front(); e != nil; e = e.Next() {
			s := e.Value.(*slot)
			if s.pinCount > 0 || s.loading {
				continue
			}
			if s.accessed {
				s.accessed = false
				continue
			}
			return e
		}
	}
	return nil
}

// Release unpins slot, marking it dirty if the caller wrote into its Data,
// moves it to the MRU end, and signals any waiter. Apart from here, the
// condition is signaled by NominateReadAhead, by FlushAllDirty after each
// write, and by Acquire only once a fill has completed and the slot's
// loading flag is cleared — never between a write-back and that point.
func (c *Cache) Release(h Slot, dirty bool) {
	c.mu.Lock()
	s := h.s
	s.pinCount--
	if dirty {
		s.dirty = true
	}
	if elem, ok := c.elemOf[s]; ok {
		c.slots.MoveToBack(elem)
	}
	c.cond.Signal()
	c.mu.Unlock()
}

// NominateReadAhead sets the single pending read-ahead hint, overwriting
// any prior nomination, and wakes the read-ahead goroutine.
func (c *Cache) NominateReadAhead(sector types.Sector) {
	c.mu.Lock()
	c.nominated = sector
	c.hasNomination = true
	c.cond.Broadcast()
	c.mu.Unlock()
}

func (c *Cache) readAheadLoop() {
	defer c.wg.Done()
	for {
		c.mu.Lock()
		for !c.hasNomination && !c.closed {
			c.cond.Wait()
		}
		if c.closed {
			c.mu.Unlock()
			return
		}
		sector := c.nominated
		c.hasNomination = false
		c.mu.Unlock()

		h := c.Acquire(sector)
		c.Release(h, false)
	}
}

func (c *Cache) writeBackLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(types.WriteIntervalMS * time.Millisecond)
	defer ticker.Stop()
	for {
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}
		select {
		case <-ticker.C:
			c.FlushAllDirty()
		case <-c.closedSignal():
			return
		}
	}
}

// closedSignal returns a channel that is closed once Shutdown has been
// called, letting writeBackLoop select between its timer and shutdown
// without holding the monitor lock across a blocking receive. It is
// cheap to call repeatedly: the channel is created once and cached.
func (c *Cache) closedSignal() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shutdownCh == nil {
		c.shutdownCh = make(chan struct{})
	}
	return c.shutdownCh
}

// FlushAllDirty writes every currently dirty, unpinned slot back to disk.
// It uses a two-phase mark-then-flush strategy: it snapshots the set of
// dirty/unpinned slots once under the lock, then flushes that snapshot one
// slot at a time, re-checking each slot's state immediately before writing
// it. A slot that became pinned or is no longer dirty (written back by an
// eviction or a concurrent flush) is simply skipped rather than waited on. This gives the same
// forward-progress guarantee as the original's "restart the walk on any
// unavailability" rule without its quadratic re-scan.
func (c *Cache) FlushAllDirty() {
	c.mu.Lock()
	var candidates []*slot
	for e := c.slots.Front(); e != nil; e = e.Next() {
		s := e.Value.(*slot)
		if s.dirty && s.pinCount == 0 && !s.loading {
			candidates = append(candidates, s)
		}
	}
	c.mu.Unlock()

	for _, s := range candidates {
		c.mu.Lock()
		if !s.dirty || s.pinCount > 0 || s.loading {
			c.mu.Unlock()
			continue
		}
		s.pinCount++
		sector := s.sector
		data := s.data
		c.mu.Unlock()

		c.device.WriteSector(sector, &data)

		c.mu.Lock()
		s.pinCount--
		if s.sector == sector {
			s.dirty = false
		}
		c.cond.Signal()
		c.mu.Unlock()
	}
}

// Shutdown stops the background goroutines and performs a final
// flush-all-dirty, guaranteeing that no cache slot remains dirty once it
// returns.
func (c *Cache) Shutdown() {
	c.mu.Lock()
	c.closed = true
	if c.shutdownCh != nil {
		close(c.shutdownCh)
	} else {
		c.shutdownCh = make(chan struct{})
		close(c.shutdownCh)
	}
	c.cond.Broadcast()
	c.mu.Unlock()

	c.wg.Wait()
	c.FlushAllDirty()
}
