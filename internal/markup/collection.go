package markup

import (
	"fmt"
	"sort"
)

// Collection holds the records of one document in discovery order.
type Collection struct {
	order  []string
	byID   map[string]*Record
	counts map[Tag]int
}

func NewCollection() *Collection {
	return &Collection{
		byID:   make(map[string]*Record),
		counts: make(map[Tag]int),
	}
}

// NextID returns the generated id for the next record of tag.
func (c *Collection) NextID(tag Tag) string {
	return fmt.Sprintf("%s-%d", tag, c.counts[tag]+1)
}

// Get returns the record with id, or nil.
func (c *Collection) Get(id string) *Record {
	return c.byID[id]
}

// EntityByEID returns the first entity record carrying eid.
func (c *Collection) EntityByEID(eid string) *Record {
	if eid == "" {
		return nil
	}
	for _, id := range c.order {
		r := c.byID[id]
		if r.Tag == TagEntity && r.EID == eid {
			return r
		}
	}
	return nil
}

// Put stores r. A record with the same id already present absorbs r via
// Overlay and is returned instead.
func (c *Collection) Put(r *Record) *Record {
	if existing, ok := c.byID[r.ID]; ok {
		if existing != r {
			existing.Overlay(r)
		}
		return existing
	}
	c.byID[r.ID] = r
	c.order = append(c.order, r.ID)
	c.counts[r.Tag]++
	return r
}

// Len is the number of distinct records.
func (c *Collection) Len() int {
	return len(c.order)
}

// Records returns records in discovery order.
func (c *Collection) Records() []*Record {
	out := make([]*Record, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}

// ByTag returns records of the given tags in discovery order.
func (c *Collection) ByTag(tags ...Tag) []*Record {
	var out []*Record
	for _, id := range c.order {
		r := c.byID[id]
		for _, t := range tags {
			if r.Tag == t {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

// Sorted returns records ordered by id.
func (c *Collection) Sorted() []*Record {
	out := c.Records()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
