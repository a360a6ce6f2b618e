/*
Copyright © 2024 the VDC authors.
This file is part of VDC.

VDC is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

VDC is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with VDC.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package datamgr fronts the region engine with a keyed cache of decoded
// subregions, a bounded block-memory budget with lock-aware LRU eviction,
// request deduplication, and the derived-variable pipeline.
package datamgr

import (
	"context"
	"fmt"

	"github.com/ctessum/requestcache"
	"github.com/golang/groupcache/lru"
	"github.com/sirupsen/logrus"

	"github.com/spatialmodel/vdc/grid"
	"github.com/spatialmodel/vdc/internal/hash"
	"github.com/spatialmodel/vdc/memmgr"
	"github.com/spatialmodel/vdc/metadata"
	"github.com/spatialmodel/vdc/region"
	"github.com/spatialmodel/vdc/vdcerr"
)

var log = logrus.WithField("component", "datamgr")

// DefaultVDCMissing is the sentinel stored in place of a source's missing
// value when the caller does not override it.
const DefaultVDCMissing = 1e37

// Key uniquely identifies one cached region.
type Key struct {
	Var      string
	Timestep int
	Level    int
	LOD      int
	Min, Max [3]int
}

// String renders the key in a stable, file-name-safe form; it also serves
// as the request-deduplication key.
func (k Key) String() string {
	return fmt.Sprintf("%s_t%d_l%d_q%d_%d_%d_%d_%d_%d_%d",
		k.Var, k.Timestep, k.Level, k.LOD,
		k.Min[0], k.Min[1], k.Min[2], k.Max[0], k.Max[1], k.Max[2])
}

// Grid is the handle returned for one cached region: a sampler over the
// decoded buffer plus the identifying key. Handles obtained with lock =
// true survive eviction until UnlockGrid.
type Grid struct {
	grid.Sampler
	Key Key

	entry *entry
}

// entry is one resident cache slot.
type entry struct {
	key     Key
	block   *memmgr.Block
	sampler grid.Sampler
	field   *regionField
	locks   int
}

// Config configures a data manager instance.
type Config struct {
	// MemBudgetMB bounds the total resident decoded-region memory.
	MemBudgetMB int
	// MemBudgetBlocks, when positive, bounds the pool in brick-sized
	// blocks directly instead of megabytes.
	MemBudgetBlocks int
	// NThreads bounds the transform worker count per brick decode.
	NThreads int
	// VDCMissing overrides the stored missing-value sentinel.
	VDCMissing float64
	// Interp selects the sampling mode of returned grids.
	Interp grid.Interpolation
}

// DataManager serves GetVariable requests against one open collection.
// Public entry points are sequential; a handle must not be shared across
// goroutines without external synchronization.
type DataManager struct {
	md        *metadata.Metadata
	cfg       Config
	pool      *memmgr.Pool
	blkSize   int
	entries   map[string]*entry
	idle      *lru.Cache // unlocked entries, most recently used last out
	dedup     *requestcache.Cache
	pipelines map[string]*Pipeline // keyed by output variable
}

// New opens a data manager over an initialized metadata object. Each data
// manager creates its own block pool here; pools are not shared between
// managers. Callers must not construct data managers before their
// metadata is initialized.
func New(md *metadata.Metadata, cfg Config) (*DataManager, error) {
	if cfg.MemBudgetMB <= 0 {
		cfg.MemBudgetMB = 512
	}
	if cfg.VDCMissing == 0 {
		cfg.VDCMissing = DefaultVDCMissing
	}
	bs := md.BrickSize()
	blkSize := bs[0] * bs[1] * bs[2]
	totalBlks := cfg.MemBudgetMB * 1024 * 1024 / (8 * blkSize)
	if cfg.MemBudgetBlocks > 0 {
		totalBlks = cfg.MemBudgetBlocks
	}
	if totalBlks < 1 {
		totalBlks = 1
	}
	pool, err := memmgr.RequestMemSize(blkSize, totalBlks, true)
	if err != nil {
		return nil, err
	}
	d := &DataManager{
		md:        md,
		cfg:       cfg,
		pool:      pool,
		blkSize:   blkSize,
		entries:   make(map[string]*entry),
		pipelines: make(map[string]*Pipeline),
	}
	d.idle = &lru.Cache{
		OnEvicted: func(key lru.Key, value interface{}) {
			e := value.(*entry)
			if e.locks > 0 {
				// Pulled off the idle list by a lock, not evicted.
				return
			}
			d.pool.FreeMem(e.block)
			delete(d.entries, key.(string))
			log.WithField("key", key).Debug("evicted region")
		},
	}
	d.dedup = requestcache.NewCache(d.process, 1, requestcache.Deduplicate())
	for _, p := range BuiltinPipelines() {
		if err := d.RegisterPipeline(p); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Metadata returns the collection metadata this manager serves.
func (d *DataManager) Metadata() *metadata.Metadata { return d.md }

// GetVariable returns the full-extent region of one variable at
// (timestep, level, lod). See GetVariableRegion.
func (d *DataManager) GetVariable(ts int, name string, level, lod int, lock bool) (*Grid, error) {
	dims, err := d.varDims(name, ts, level)
	if err != nil {
		return nil, err
	}
	return d.GetVariableRegion(ts, name, level, lod,
		[3]int{0, 0, 0}, [3]int{dims[0] - 1, dims[1] - 1, dims[2] - 1}, lock)
}

// GetVariableRegion returns the voxel sub-box [min, max] of a variable at
// (timestep, level, lod), decoding on miss and serving the cache on hit.
// Two calls with identical keys return handles over the same buffer. When
// lock is true the entry is pinned until UnlockGrid.
func (d *DataManager) GetVariableRegion(ts int, name string, level, lod int, min, max [3]int, lock bool) (*Grid, error) {
	key := Key{Var: name, Timestep: ts, Level: level, LOD: lod, Min: min, Max: max}
	ks := hash.Key(key)

	e, ok := d.entries[ks]
	if !ok {
		req := d.dedup.NewRequest(context.Background(), key, ks)
		result, err := req.Result()
		if err != nil {
			return nil, err
		}
		pr := result.(processResult)
		if pr.err != nil {
			return nil, pr.err
		}
		e = pr.entry
	} else if e.locks == 0 {
		// Refresh recency; a locked entry is not in the idle list.
		d.idle.Get(ks)
	}
	if lock {
		e.locks++
		if e.locks == 1 {
			d.idle.Remove(ks)
		}
	}
	return &Grid{Sampler: e.sampler, Key: key, entry: e}, nil
}

// UnlockGrid decrements a locked handle's pin count; at zero the entry
// rejoins the idle list and becomes eligible for eviction.
func (d *DataManager) UnlockGrid(g *Grid) error {
	if g == nil || g.entry == nil {
		return vdcerr.Wrap(vdcerr.InvalidParam, "datamgr: nil grid handle")
	}
	e := g.entry
	if e.locks <= 0 {
		return vdcerr.Wrap(vdcerr.InvalidParam, "datamgr: grid %s is not locked", e.key.String())
	}
	e.locks--
	if e.locks == 0 {
		d.idle.Add(hash.Key(e.key), e)
	}
	return nil
}

// processResult carries fetch failures inside the payload: a request that
// returned a bare error would skip the deduplicator's cleanup hook and
// wedge its key for every later request.
type processResult struct {
	entry *entry
	err   error
}

// process is the deduplicated miss path; it delegates to fetch, which is
// also the reentrant path pipelines use for their inputs.
func (d *DataManager) process(ctx context.Context, payload interface{}) (interface{}, error) {
	e, err := d.fetch(payload.(Key))
	return processResult{entry: e, err: err}, nil
}

// fetch resolves one region to a resident cache entry, deriving or
// loading it on miss and registering it on the idle list. A pipeline that
// re-requests an input already cached gets the cache entry back rather
// than re-deriving it.
func (d *DataManager) fetch(key Key) (*entry, error) {
	ks := hash.Key(key)
	if e, ok := d.entries[ks]; ok {
		if e.locks == 0 {
			d.idle.Get(ks)
		}
		return e, nil
	}
	var e *entry
	var err error
	if p, ok := d.pipelines[key.Var]; ok && !d.stored(key.Var) {
		e, err = d.derive(p, key)
	} else {
		e, err = d.load(key)
	}
	if err != nil {
		return nil, err
	}
	d.entries[ks] = e
	d.idle.Add(ks, e)
	return e, nil
}

// stored reports whether a variable exists in the metadata; a stored
// variable shadows any pipeline sharing its name.
func (d *DataManager) stored(name string) bool {
	_, err := d.md.Variable(name)
	return err == nil
}

// load reads one stored region through the region engine into pool-owned
// memory and wraps it in a sampler.
func (d *DataManager) load(key Key) (*entry, error) {
	cfg, err := region.FromMetadata(d.md, key.Var, key.Timestep, d.cfg.VDCMissing, d.cfg.NThreads)
	if err != nil {
		return nil, err
	}
	rd, err := region.OpenReader(cfg, key.Level, key.LOD)
	if err != nil {
		return nil, err
	}
	defer rd.Close()

	data, err := rd.ReadRegion(key.Min, key.Max)
	if err != nil {
		return nil, err
	}
	return d.wrap(key, data, rd.Mask() != nil)
}

// wrap copies a decoded buffer into pool memory and builds the sampler.
func (d *DataManager) wrap(key Key, data []float64, hasMissing bool) (*entry, error) {
	nx := key.Max[0] - key.Min[0] + 1
	ny := key.Max[1] - key.Min[1] + 1
	nz := key.Max[2] - key.Min[2] + 1
	blk, err := d.alloc(nx * ny * nz)
	if err != nil {
		return nil, err
	}
	copy(blk.Array.Elements, data)

	f := &regionField{
		data:       blk.Array.Elements,
		nx:         nx,
		ny:         ny,
		nz:         nz,
		missing:    d.cfg.VDCMissing,
		hasMissing: hasMissing,
	}
	sampler, err := d.sampler(key, f)
	if err != nil {
		d.pool.FreeMem(blk)
		return nil, err
	}
	return &entry{key: key, block: blk, sampler: sampler, field: f}, nil
}

// alloc draws n float64s from the pool, evicting idle regions in LRU
// order until the allocation fits. It fails with OutOfMemory when every
// resident region is locked.
func (d *DataManager) alloc(n int) (*memmgr.Block, error) {
	blocks := (n + d.blkSize - 1) / d.blkSize
	for {
		blk, err := d.pool.Alloc(blocks, blocks*d.blkSize)
		if err == nil {
			return blk, nil
		}
		if !vdcerr.Is(err, vdcerr.OutOfMemory) || d.idle.Len() == 0 {
			return nil, err
		}
		d.idle.RemoveOldest()
	}
}

// varDims returns a variable's voxel dimensions at a refinement level,
// consulting pipelines for derived variables.
func (d *DataManager) varDims(name string, ts int, level int) ([3]int, error) {
	if _, err := d.md.Variable(name); err != nil {
		p, ok := d.pipelines[name]
		if !ok {
			return [3]int{}, err
		}
		// Derived variables share their first input's geometry.
		return d.varDims(p.Inputs[0].Var, ts, level)
	}
	cfg, err := region.FromMetadata(d.md, name, ts, d.cfg.VDCMissing, d.cfg.NThreads)
	if err != nil {
		return [3]int{}, err
	}
	return cfg.DimsAt(level), nil
}
