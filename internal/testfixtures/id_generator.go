package testfixtures

import (
	"strconv"
	"sync/atomic"
)

// IDGenerator hands out "<prefix>-<n>" identifiers starting at 1. Safe for concurrent use.
type IDGenerator struct {
	prefix string
	issued atomic.Uint64
}

// NewIDGenerator returns a generator for prefix. An empty prefix becomes "id".
func NewIDGenerator(prefix string) *IDGenerator {
	if prefix == "" {
		prefix = "id"
	}
	return &IDGenerator{prefix: prefix}
}

// Next returns the next identifier.
func (g *IDGenerator) Next() string {
	n := g.issued.Add(1)
	return g.prefix + "-" + strconv.FormatUint(n, 10)
}

// NextFunc adapts the generator to TimetableServiceConfig.IDGenerator. A nil
// generator yields a fresh "id" sequence.
func (g *IDGenerator) NextFunc() func() string {
	if g == nil {
		return NewIDGenerator("").Next
	}
	return g.Next
}

// Issued reports how many identifiers were handed out.
func (g *IDGenerator) Issued() uint64 {
	return g.issued.Load()
}
