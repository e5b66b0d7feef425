package dispatch

import (
	"math/rand"

	"github.com/tcplb/tcplb/internal/domain"
)

// SelectP2C implements Power-of-Two-Choices selection from spec.md §4.E:
// draw two distinct indices uniformly at random (degenerate cases: size 1
// uses it directly; size 2 picks a random order), score each candidate as
// (load+1)*(1-weight), and keep the lower score. Ties break toward the
// first draw.
//
// rng is injected so selection is deterministic under a fixed seed (the
// P2C-determinism law in spec.md §8).
func SelectP2C(rng *rand.Rand, available []*domain.Endpoint) *domain.Endpoint {
	switch len(available) {
	case 0:
		return nil
	case 1:
		return available[0]
	case 2:
		if rng.Intn(2) == 0 {
			return pickLower(available[0], available[1])
		}
		return pickLower(available[1], available[0])
	default:
		i0 := rng.Intn(len(available))
		i1 := rng.Intn(len(available))
		for i1 == i0 {
			i1 = rng.Intn(len(available))
		}
		return pickLower(available[i0], available[i1])
	}
}

func pickLower(a, b *domain.Endpoint) *domain.Endpoint {
	scoreA := (a.Load() + 1) * (1 - a.Weight())
	scoreB := (b.Load() + 1) * (1 - b.Weight())
	if scoreA <= scoreB {
		return a
	}
	return b
}
