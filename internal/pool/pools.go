package pool

import (
	"strings"

	"github.com/greysquirr3l/codeguardian-go/internal/finding"
)

// Default pool bounds.
const (
	DefaultFindingSlices = 1000
	DefaultBuilders      = 500
)

// Pools groups the pools shared by one engine and its analyzers.
// Construct one per engine; tests build isolated instances.
type Pools struct {
	Findings *Pool[[]finding.Finding]
	Builders *Pool[*strings.Builder]
	Content  *ContentPool
}

// NewPools creates a Pools set with the given bounds.
func NewPools(findingSlices, builders int) *Pools {
	return &Pools{
		Findings: New(findingSlices,
			func() []finding.Finding { return make([]finding.Finding, 0, 16) },
			WithReset(func(s []finding.Finding) []finding.Finding {
				clear(s)
				return s[:0]
			}),
		),
		Builders: New(builders,
			func() *strings.Builder { return &strings.Builder{} },
			WithReset(func(b *strings.Builder) *strings.Builder {
				b.Reset()
				return b
			}),
		),
		Content: NewContentPool(),
	}
}

// DefaultPools creates a Pools set with default bounds.
func DefaultPools() *Pools {
	return NewPools(DefaultFindingSlices, DefaultBuilders)
}
