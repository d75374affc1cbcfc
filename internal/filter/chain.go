package filter

import "firestige.xyz/sahara/internal/core"

// Chain accepts a transaction only if every filter accepts it. An empty
// chain accepts everything.
type Chain struct {
	filters []Filter
	dropped uint64
}

func NewChain(filters ...Filter) *Chain {
	return &Chain{filters: filters}
}

// Add appends f to the chain.
func (c *Chain) Add(f Filter) {
	c.filters = append(c.filters, f)
}

func (c *Chain) Accept(tx core.Transaction) bool {
	for _, f := range c.filters {
		if !f.Accept(tx) {
			c.dropped++
			return false
		}
	}
	return true
}

// Len returns the number of filters.
func (c *Chain) Len() int { return len(c.filters) }

// Dropped returns how many transactions were rejected.
func (c *Chain) Dropped() uint64 { return c.dropped }
