package terrain

import (
	"errors"
	"fmt"

	"github.com/gekko3d/planets"
	"github.com/gekko3d/planets/planetrt/rt/core"
	"github.com/gekko3d/planets/planetrt/rt/databuffer"
)

type PlanetOptions struct {
	Name   string
	Radius float64
	// Water planets draw a second, translucent pass for submerged patches.
	Water     bool
	Generator Generator
	Buffer    *databuffer.Buffer
	Logger    planets.Logger
	Clock     planets.Clock
}

// Planet owns one patch quadtree. Everything except EvictPatch's caller
// (the arena, on the main thread) is main-thread only.
type Planet struct {
	name   string
	radius float64
	water  bool

	generator Generator
	buffer    *databuffer.Buffer
	constants *databuffer.PatchConstants
	owner     databuffer.OwnerID
	clock     planets.Clock
	logger    planets.Logger

	patches    []Patch
	freeBlocks []PatchID
	patchMap   map[core.PatchHash]PatchID
	queue      []PatchID

	stats TraversalStats
}

func NewPlanet(opts PlanetOptions) (*Planet, error) {
	if opts.Generator == nil {
		return nil, errors.New("planet needs a terrain generator")
	}
	if opts.Buffer == nil {
		return nil, errors.New("planet needs a patch data buffer")
	}
	if opts.Radius <= 0 {
		return nil, fmt.Errorf("planet %q radius %g must be positive", opts.Name, opts.Radius)
	}

	p := &Planet{
		name:      opts.Name,
		radius:    opts.Radius,
		water:     opts.Water,
		generator: opts.Generator,
		buffer:    opts.Buffer,
		constants: opts.Buffer.Constants(),
		clock:     planets.ClockOrSystem(opts.Clock),
		logger:    planets.Sub(planets.LoggerOrNop(opts.Logger), opts.Name),
		patches:   make([]Patch, 0, 1024),
		patchMap:  make(map[core.PatchHash]PatchID),
	}
	for _, h := range core.RootHashes() {
		id := PatchID(len(p.patches))
		p.patches = append(p.patches, newPatch(h, 0, NoPatch))
		p.patchMap[h] = id
	}
	p.owner = opts.Buffer.RegisterOwner(p)
	if st, ok := opts.Buffer.Owner(p.owner); ok {
		p.logger.Debugf("registered as arena owner %s", st.Key)
	}
	return p, nil
}

func (p *Planet) Name() string         { return p.name }
func (p *Planet) Radius() float64      { return p.radius }
func (p *Planet) HasWater() bool       { return p.water }
func (p *Planet) Generator() Generator { return p.generator }

// Patch returns the patch for id. The pointer is invalidated by the next
// traversal.
func (p *Planet) Patch(id PatchID) *Patch {
	return &p.patches[id]
}

func (p *Planet) Lookup(h core.PatchHash) (PatchID, bool) {
	id, ok := p.patchMap[h]
	return id, ok
}

// PatchCount is the number of patches in the tree.
func (p *Planet) PatchCount() int { return len(p.patchMap) }

func (p *Planet) QueueLen() int { return len(p.queue) }

func (p *Planet) LastStats() TraversalStats { return p.stats }

// allocChildren creates the four children of parent and registers them.
func (p *Planet) allocChildren(parent PatchID) PatchID {
	var first PatchID
	if n := len(p.freeBlocks); n > 0 {
		first = p.freeBlocks[n-1]
		p.freeBlocks = p.freeBlocks[:n-1]
	} else {
		first = PatchID(len(p.patches))
		p.patches = append(p.patches, Patch{}, Patch{}, Patch{}, Patch{})
	}
	hash := p.patches[parent].Hash
	for i := 0; i < 4; i++ {
		child := hash.Child(i)
		p.patches[first+PatchID(i)] = newPatch(child, i, parent)
		p.patchMap[child] = first + PatchID(i)
	}
	p.patches[parent].Children = first
	return first
}

// childrenReleasable reports whether nothing in the subtree below the block
// starting at first holds a slot or waits for generation.
func (p *Planet) childrenReleasable(first PatchID) bool {
	for i := PatchID(0); i < 4; i++ {
		child := &p.patches[first+i]
		if child.Populated || child.Queued || child.NumChildrenPopulated != 0 {
			return false
		}
		if child.Children != NoPatch && !p.childrenReleasable(child.Children) {
			return false
		}
	}
	return true
}

// releaseChildren drops parent's child block, and every block below it, so
// the parent becomes a leaf.
func (p *Planet) releaseChildren(parent PatchID) {
	first := p.patches[parent].Children
	for i := PatchID(0); i < 4; i++ {
		if p.patches[first+i].Children != NoPatch {
			p.releaseChildren(first + i)
		}
		delete(p.patchMap, p.patches[first+i].Hash)
		p.patches[first+i] = Patch{Parent: NoPatch, Children: NoPatch, Slot: databuffer.NoSlot}
	}
	p.patches[parent].Children = NoPatch
	p.freeBlocks = append(p.freeBlocks, first)
}

// pruneChildren releases id's child block when nothing below it was ever
// generated or is still waiting to be.
func (p *Planet) pruneChildren(id PatchID) {
	if first := p.patches[id].Children; first != NoPatch && p.childrenReleasable(first) {
		p.releaseChildren(id)
	}
}

// EvictPatch is called by the arena on the main thread when a slot went
// stale. It refuses patches that still have populated children or are no
// longer the slot's holder.
func (p *Planet) EvictPatch(ref databuffer.PatchRef, slot databuffer.Slot) bool {
	id := PatchID(ref)
	if id < 0 || int(id) >= len(p.patches) {
		return false
	}
	patch := &p.patches[id]
	hash := patch.Hash
	if !patch.Populated || patch.Slot != slot || patch.NumChildrenPopulated != 0 {
		return false
	}
	if patch.Children != NoPatch {
		if !p.childrenReleasable(patch.Children) {
			return false
		}
		p.releaseChildren(id)
		patch = &p.patches[id]
	}

	patch.Populated = false
	patch.Slot = databuffer.NoSlot
	// Releasing the sibling block zeroes *patch, so it is not used after this.
	if parent := patch.Parent; parent != NoPatch {
		pp := &p.patches[parent]
		pp.NumChildrenPopulated &^= 1 << patch.ChildIndex
		if p.childrenReleasable(pp.Children) {
			p.releaseChildren(parent)
		}
	}
	p.logger.Debugf("evicted %s", hash)
	return true
}

// Close gives back every slot and forgets the tree.
func (p *Planet) Close() {
	freed := p.buffer.UnregisterOwner(p.owner)
	p.logger.Debugf("closed, released %d slots", freed)
	p.patches = p.patches[:0]
	p.freeBlocks = nil
	p.queue = nil
	clear(p.patchMap)
}
