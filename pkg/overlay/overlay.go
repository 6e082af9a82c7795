// Package overlay describes the game's overlay tables: which overlay names
// exist in each category, where a category's table entries live and how an
// overlay name maps to the table slot holding its current load address.
package overlay

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru"
)

// Category identifies one of the overlay tables. Categories are searched
// in declaration order when resolving a name.
type Category int

const (
	Actor Category = iota
	Particle
	Gamestate
	Kaleido

	NumCategories
)

var categoryNames = [NumCategories]string{"actor", "particle", "gamestate", "kaleido"}

func (c Category) String() string {
	if c < 0 || c >= NumCategories {
		return fmt.Sprintf("Category(%d)", int(c))
	}
	return categoryNames[c]
}

// Geometry is the layout of a category's table: the size of each entry
// and the offset, inside an entry, of the word holding the overlay's load
// address.
type Geometry struct {
	EntrySize   uint32
	EntryOffset uint32
}

var geometries = [NumCategories]Geometry{
	Actor:     {EntrySize: 0x20, EntryOffset: 0x10},
	Particle:  {EntrySize: 0x1C, EntryOffset: 0x10},
	Gamestate: {EntrySize: 0x30, EntryOffset: 0},
	Kaleido:   {EntrySize: 0x30, EntryOffset: 0},
}

// Geometry returns the fixed table layout of c.
func (c Category) Geometry() Geometry {
	return geometries[c]
}

// EntryAddr returns the address of the load-address word for the overlay
// at index in a table of this geometry starting at base.
func (g Geometry) EntryAddr(base uint32, index int) uint32 {
	return base + uint32(index)*g.EntrySize + g.EntryOffset
}

// Tables holds the ordered overlay names of every category.
type Tables [NumCategories][]string

// DefaultTables returns the overlay tables of the retail build.
func DefaultTables() Tables {
	return Tables{
		Actor:     append([]string(nil), actorNames...),
		Particle:  append([]string(nil), particleNames...),
		Gamestate: append([]string(nil), gamestateNames...),
		Kaleido:   append([]string(nil), kaleidoNames...),
	}
}

// Resolver answers "at which index of category c is overlay name" queries.
// Answers are cached, the cache is dropped whenever the tables change.
// A Resolver is safe for concurrent use.
type Resolver struct {
	mu     sync.RWMutex
	tables Tables
	cache  *lru.Cache
}

const defaultCacheSize = 512

type cacheKey struct {
	cat  Category
	name string
}

// NewResolver returns a resolver over tables.
func NewResolver(tables Tables) *Resolver {
	cache, err := lru.New(defaultCacheSize)
	if err != nil {
		// only fails for non-positive sizes
		panic(err)
	}
	return &Resolver{tables: tables, cache: cache}
}

// Index returns the position of name in the table of category c.
func (r *Resolver) Index(c Category, name string) (int, bool) {
	key := cacheKey{c, name}
	if v, ok := r.cache.Get(key); ok {
		idx := v.(int)
		return idx, idx >= 0
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	idx := -1
	for i, n := range r.tables[c] {
		if n == name {
			idx = i
			break
		}
	}
	r.cache.Add(key, idx)
	return idx, idx >= 0
}

// Tables returns the tables currently in use.
func (r *Resolver) Tables() Tables {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tables
}

// SetTables replaces the tables and invalidates cached answers.
func (r *Resolver) SetTables(tables Tables) {
	r.mu.Lock()
	r.tables = tables
	r.cache.Purge()
	r.mu.Unlock()
}
