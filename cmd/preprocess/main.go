package main

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/hauke96/sigolo/v2"
	"github.com/joho/godotenv"

	"github.com/azybler/map_locator/pkg/geo"
	"github.com/azybler/map_locator/pkg/graph"
	"github.com/azybler/map_locator/pkg/locindex"
	osmparser "github.com/azybler/map_locator/pkg/osm"
)

var cli struct {
	Logging       string `help:"Logging verbosity." enum:"info,debug,trace" short:"l" default:"info" env:"MAPLOC_LOGGING"`
	Input         string `help:"Path to .osm.pbf file." arg:"" type:"existingfile" placeholder:"<file.osm.pbf>"`
	Output        string `help:"Output binary graph file path." default:"graph.bin" env:"MAPLOC_GRAPH"`
	Index         string `help:"Output location index file path." default:"graph.locidx" env:"MAPLOC_INDEX"`
	BBox          string `help:"Bounding box filter: minLat,minLng,maxLat,maxLng (e.g. 1.15,103.6,1.48,104.1)." name:"bbox" xor:"area"`
	Singapore     bool   `help:"Shortcut for --bbox 1.15,103.6,1.48,104.1 (Singapore bounding box)." xor:"area"`
	KL            bool   `help:"Shortcut for --bbox 2.75,101.2,3.5,102.0 (Selangor + Kuala Lumpur bounding box)." name:"kl" xor:"area"`
	AllComponents bool   `help:"Keep every connected component instead of only the largest one."`
	TileCapacity  int    `help:"Edge references at which an index tile is split." default:"${tile_capacity}" env:"MAPLOC_TILE_CAPACITY"`
	MaxDepth      int    `help:"Maximum depth of the index tile tree." default:"${max_depth}" env:"MAPLOC_MAX_DEPTH"`
}

func main() {
	_ = godotenv.Load(".env")
	kong.Parse(
		&cli,
		kong.Name("preprocess"),
		kong.Description("Builds the road graph and its location index from an OSM extract."),
		kong.Vars{
			"tile_capacity": strconv.Itoa(locindex.DefaultTileCapacity),
			"max_depth":     strconv.Itoa(locindex.DefaultMaxDepth),
		},
	)
	setLogLevel(cli.Logging)

	var opts osmparser.ParseOptions
	switch {
	case cli.KL:
		opts.BBox = geo.NewBBox(2.75, 101.2, 3.5, 102.0)
		sigolo.Info("Using Selangor + KL bounding box filter: lat [2.75, 3.50], lng [101.20, 102.00]")
	case cli.Singapore:
		opts.BBox = geo.NewBBox(1.15, 103.6, 1.48, 104.1)
		sigolo.Info("Using Singapore bounding box filter: lat [1.15, 1.48], lng [103.6, 104.1]")
	case cli.BBox != "":
		b, err := geo.ParseBBox(cli.BBox)
		sigolo.FatalCheck(err)
		opts.BBox = b
		sigolo.Infof("Using bounding box filter: lat [%.4f, %.4f], lng [%.4f, %.4f]", b.MinLat, b.MaxLat, b.MinLon, b.MaxLon)
	}

	start := time.Now()

	// Step 1: Parse OSM data.
	sigolo.Info("Opening OSM file...")
	f, err := os.Open(cli.Input)
	sigolo.FatalCheck(err)
	defer f.Close()

	sigolo.Info("Parsing OSM data...")
	parseResult, err := osmparser.Parse(context.Background(), f, opts)
	sigolo.FatalCheck(err)
	sigolo.Infof("Parsed %d edges, %d nodes", len(parseResult.Edges), len(parseResult.NodeLat))

	// Step 2: Build graph.
	sigolo.Info("Building graph...")
	g := graph.Build(parseResult)
	sigolo.Infof("Graph: %d nodes, %d edges", g.NumNodes, g.NumEdges)

	// Step 3: Extract largest connected component.
	if !cli.AllComponents && g.NumNodes > 0 {
		sigolo.Info("Extracting largest connected component...")
		componentNodes := graph.LargestComponent(g)
		sigolo.Infof("Largest component: %d nodes (%.1f%%)", len(componentNodes), float64(len(componentNodes))/float64(g.NumNodes)*100)
		g = graph.FilterToComponent(g, componentNodes)
		sigolo.Infof("Filtered graph: %d nodes, %d edges", g.NumNodes, g.NumEdges)
	}

	// Step 4: Serialize the graph.
	sigolo.Infof("Writing graph to %s...", cli.Output)
	sigolo.FatalCheck(graph.WriteBinary(cli.Output, g))

	// Step 5: Build and flush the location index.
	idx, err := locindex.New(g, cli.Index, locindex.Config{TileCapacity: cli.TileCapacity, MaxDepth: cli.MaxDepth})
	sigolo.FatalCheck(err)
	sigolo.FatalCheck(idx.Build())
	sigolo.FatalCheck(idx.Flush())
	sigolo.FatalCheck(idx.Close())

	sigolo.Infof("Done in %s. Graph: %s (%.1f MB), index: %s (%.1f MB)",
		time.Since(start).Round(time.Second), cli.Output, fileMB(cli.Output), cli.Index, fileMB(cli.Index))
}

func fileMB(path string) float64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return float64(info.Size()) / (1024 * 1024)
}

func setLogLevel(level string) {
	switch strings.ToLower(level) {
	case "debug":
		sigolo.SetDefaultLogLevel(sigolo.LOG_DEBUG)
	case "trace":
		sigolo.SetDefaultLogLevel(sigolo.LOG_TRACE)
	default:
		sigolo.SetDefaultLogLevel(sigolo.LOG_INFO)
		sigolo.SetDefaultFormatFunctionAll(sigolo.LogPlain)
	}
}
