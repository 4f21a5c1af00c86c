package locindex

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azybler/map_locator/pkg/geo"
)

func TestSnapAllKeepsOrderAndPayload(t *testing.T) {
	s := randomStore(51, 200, 400)
	ix := buildIndex(t, s, Config{TileCapacity: 8, MaxDepth: 8})

	rng := rand.New(rand.NewPCG(51, 52))
	points := make([]geo.Coord[string], 100)
	for i := range points {
		points[i] = geo.NewCoord(1.30+rng.Float64()*0.1, 103.80+rng.Float64()*0.1, "p"+string(rune('a'+i%26)))
	}

	matches, err := SnapAll(context.Background(), ix, points, nil, 4)
	require.NoError(t, err)
	require.Len(t, matches, len(points))
	for i, m := range matches {
		assert.Equal(t, points[i], m.Point)
		want, err := ix.FindClosest(points[i].Lat, points[i].Lon, nil)
		require.NoError(t, err)
		assert.Equal(t, want, m.Snap)
	}
}

func TestSnapAllWithinRadius(t *testing.T) {
	ix := buildIndex(t, rightAngle(), DefaultConfig())
	points := []geo.Coord[int]{
		geo.NewCoord(0.0001, 0.5, 1), // about 11 m from the east edge
		geo.NewCoord(0.1, 0.1, 2),    // about 11 km away
	}

	matches, err := SnapAll(context.Background(), WithinRadius(ix, 100), points, AllEdges, 0)
	require.NoError(t, err)
	assert.True(t, matches[0].Snap.Valid)
	assert.Equal(t, uint32(1), matches[0].Snap.EdgeID)
	assert.False(t, matches[1].Snap.Valid)
	assert.Equal(t, 2, matches[1].Point.Value)
}

func TestSnapAllFilterError(t *testing.T) {
	ix := buildIndex(t, rightAngle(), DefaultConfig())
	errBad := errors.New("bad filter")
	points := []geo.Coord[struct{}]{{Lat: 0.1, Lon: 0.1}, {Lat: 0.2, Lon: 0.2}}

	_, err := SnapAll(context.Background(), ix, points, FallibleFilterFunc(func(uint32) (bool, error) {
		return false, errBad
	}), 2)
	assert.ErrorIs(t, err, errBad)
}

func TestSnapAllCancelled(t *testing.T) {
	ix := buildIndex(t, rightAngle(), DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := SnapAll(ctx, ix, []geo.Coord[int]{{Lat: 0.1, Lon: 0.1}}, nil, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSnapAllNotReady(t *testing.T) {
	ix, err := New(rightAngle(), t.TempDir()+"/x.locidx", DefaultConfig())
	require.NoError(t, err)

	_, err = SnapAll(context.Background(), ix, []geo.Coord[int]{{Lat: 0.1, Lon: 0.1}}, nil, 1)
	assert.True(t, IsStateError(err), "got %v", err)
}
