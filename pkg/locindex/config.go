package locindex

import "fmt"

const (
	// DefaultTileCapacity is the number of edge references at which a tile
	// gets split into four children.
	DefaultTileCapacity = 64
	// DefaultMaxDepth bounds the tile tree depth. At depth 16 a tile over a
	// 1 degree wide region is about 1.7 m across.
	DefaultMaxDepth = 16

	maxAllowedDepth = 24
)

// Config holds the tile grid parameters.
type Config struct {
	// TileCapacity: a tile holding fewer edge references than this stays a leaf.
	TileCapacity int
	// MaxDepth: tiles at this depth are always leaves. The root has depth 0.
	MaxDepth int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		TileCapacity: DefaultTileCapacity,
		MaxDepth:     DefaultMaxDepth,
	}
}

// Validate returns a *ConfigError if the parameters cannot build a grid.
func (c Config) Validate() error {
	if c.TileCapacity <= 0 {
		return &ConfigError{Field: "TileCapacity", Reason: fmt.Sprintf("must be positive, got %d", c.TileCapacity)}
	}
	if c.MaxDepth < 0 || c.MaxDepth > maxAllowedDepth {
		return &ConfigError{Field: "MaxDepth", Reason: fmt.Sprintf("must be within [0, %d], got %d", maxAllowedDepth, c.MaxDepth)}
	}
	return nil
}
