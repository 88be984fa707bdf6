package market

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"sort"
)

// DefaultSessionSize is the number of items offered per session.
const DefaultSessionSize = 10

// RandSource provides random draws for the pool selector. Tests inject a
// deterministic source.
type RandSource interface {
	// Intn returns a random integer in [0, n). Panics if n <= 0.
	Intn(n int) int
}

// cryptoRandSource draws from reader, or crypto/rand when reader is nil. A
// failing reader panics.
type cryptoRandSource struct {
	reader io.Reader
}

func (c cryptoRandSource) Intn(n int) int {
	if n <= 0 {
		panic(fmt.Sprintf("cryptoRandSource.Intn: n must be positive, got %d", n))
	}
	r := c.reader
	if r == nil {
		r = rand.Reader
	}
	v, err := rand.Int(r, big.NewInt(int64(n)))
	if err != nil {
		panic(fmt.Sprintf("cryptoRandSource.Intn: %v", err))
	}
	return int(v.Int64())
}

// PoolDraw is the outcome of a pool selection.
type PoolDraw struct {
	AssetIDs []string
	Reset    bool
}

// SelectPool picks k assets for a new session from the league's unowned
// assets. Assets not yet shown since the last reset are drawn first; when
// fewer than k remain, the shown flags are considered cleared and the draw
// covers the whole unowned set.
func SelectPool(assets []Asset, k int, rnd RandSource) (PoolDraw, error) {
	if k <= 0 {
		return PoolDraw{}, Errorf(KindInvalidInput, "session size must be > 0")
	}
	if rnd == nil {
		rnd = cryptoRandSource{}
	}

	unowned := make([]Asset, 0, len(assets))
	for _, a := range assets {
		if a.OwnerTeamID == "" {
			unowned = append(unowned, a)
		}
	}
	// Fixed input order so a seeded source reproduces the same draw.
	sort.Slice(unowned, func(i, j int) bool { return unowned[i].ID < unowned[j].ID })

	var neverShown []Asset
	for _, a := range unowned {
		if !a.ShownSinceReset {
			neverShown = append(neverShown, a)
		}
	}

	if len(neverShown) >= k {
		return PoolDraw{AssetIDs: drawIDs(neverShown, k, rnd)}, nil
	}
	if len(unowned) < k {
		return PoolDraw{}, Errorf(KindInsufficientPool, "league has %d free agents, session needs %d", len(unowned), k)
	}
	return PoolDraw{AssetIDs: drawIDs(unowned, k, rnd), Reset: true}, nil
}

// drawIDs takes k of candidates uniformly without replacement using a
// partial Fisher-Yates shuffle.
func drawIDs(candidates []Asset, k int, rnd RandSource) []string {
	ids := make([]string, len(candidates))
	for i, a := range candidates {
		ids[i] = a.ID
	}
	for i := 0; i < k; i++ {
		j := i + rnd.Intn(len(ids)-i)
		ids[i], ids[j] = ids[j], ids[i]
	}
	return ids[:k]
}
