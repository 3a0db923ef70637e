package domain

import (
	"fmt"
)

// IndexMap translates between global ids and the dense local numbering of a
// domain. Owned entries come first, local ids 0..NumOwned-1, followed by the
// halo entries. It is immutable once built.
type IndexMap struct {
	globals []int
	locals  map[int]int
	nOwned  int
}

func NewIndexMap(owned, halo []int) (im *IndexMap, err error) {
	im = &IndexMap{
		globals: make([]int, 0, len(owned)+len(halo)),
		locals:  make(map[int]int, len(owned)+len(halo)),
		nOwned:  len(owned),
	}
	for _, list := range [][]int{owned, halo} {
		for _, g := range list {
			if g < 0 {
				return nil, fmt.Errorf("negative global id %d", g)
			}
			if _, dup := im.locals[g]; dup {
				return nil, fmt.Errorf("global id %d appears twice in the local domain", g)
			}
			im.locals[g] = len(im.globals)
			im.globals = append(im.globals, g)
		}
	}
	return
}

// GlobalID panics when local is out of range, like an index expression
func (im *IndexMap) GlobalID(local int) int {
	return im.globals[local]
}

// LocalID returns false for global ids neither owned nor in the halo
func (im *IndexMap) LocalID(global int) (local int, ok bool) {
	local, ok = im.locals[global]
	return
}

func (im *IndexMap) NumOwned() int { return im.nOwned }

func (im *IndexMap) NumHalo() int { return len(im.globals) - im.nOwned }

func (im *IndexMap) Len() int { return len(im.globals) }

func (im *IndexMap) IsOwned(local int) bool { return local >= 0 && local < im.nOwned }

func (im *IndexMap) IsHalo(local int) bool { return local >= im.nOwned && local < len(im.globals) }

// Globals returns a copy of the local to global table
func (im *IndexMap) Globals() []int {
	return append([]int(nil), im.globals...)
}

// LocalIDs translates a list of global ids, failing on any absent id
func (im *IndexMap) LocalIDs(globals []int) (locals []int, err error) {
	locals = make([]int, len(globals))
	for i, g := range globals {
		var ok bool
		if locals[i], ok = im.locals[g]; !ok {
			return nil, fmt.Errorf("global id %d is not in the local domain", g)
		}
	}
	return
}
