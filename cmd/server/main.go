package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/hauke96/sigolo/v2"
	"github.com/joho/godotenv"

	"github.com/azybler/map_locator/pkg/api"
	"github.com/azybler/map_locator/pkg/graph"
	"github.com/azybler/map_locator/pkg/locindex"
)

var cli struct {
	Logging         string  `help:"Logging verbosity." enum:"info,debug,trace" short:"l" default:"info" env:"MAPLOC_LOGGING"`
	Graph           string  `help:"Path to preprocessed graph binary." default:"graph.bin" env:"MAPLOC_GRAPH"`
	Index           string  `help:"Path to the location index file." default:"graph.locidx" env:"MAPLOC_INDEX"`
	Port            int     `help:"HTTP port." default:"8080" env:"MAPLOC_PORT"`
	CORSOrigin      string  `help:"CORS allowed origin (empty = same-origin)." name:"cors-origin" env:"MAPLOC_CORS_ORIGIN"`
	MaxSnapDistance float64 `help:"Largest snap radius in meters." default:"500" env:"MAPLOC_MAX_SNAP_DISTANCE"`
	RateLimit       float64 `help:"Sustained requests per second, 0 disables limiting." default:"200" env:"MAPLOC_RATE_LIMIT"`
	Rebuild         bool    `help:"Rebuild the location index when it is missing or unreadable." default:"true" negatable:""`
}

func main() {
	_ = godotenv.Load(".env")
	kong.Parse(
		&cli,
		kong.Name("server"),
		kong.Description("Serves nearest-road snapping and region queries over HTTP."),
	)
	setLogLevel(cli.Logging)

	start := time.Now()

	// Load graph.
	sigolo.Infof("Loading graph from %s...", cli.Graph)
	g, err := graph.ReadBinary(cli.Graph)
	sigolo.FatalCheck(err)
	sigolo.Infof("Loaded: %d nodes, %d edges", g.NumNodes, g.NumEdges)

	idx, err := openIndex(g)
	sigolo.FatalCheck(err)
	defer idx.Close()

	sigolo.Infof("Ready in %s", time.Since(start).Round(time.Millisecond))

	// Setup HTTP server.
	cfg := api.DefaultConfig(fmt.Sprintf(":%d", cli.Port))
	cfg.CORSOrigin = cli.CORSOrigin
	cfg.RateLimit = cli.RateLimit

	handlers := api.NewHandlers(idx, g, api.HandlerConfig{
		MaxSnapDistance: cli.MaxSnapDistance,
		NumNodes:        g.NumNodes,
	})
	srv := api.NewServer(cfg, handlers)

	if err := api.ListenAndServe(srv); err != nil {
		sigolo.Errorf("Server stopped: %v", err)
		os.Exit(1)
	}
}

// openIndex loads the persisted index, or rebuilds and flushes it when the
// file is absent or does not match the graph.
func openIndex(g *graph.Graph) (*locindex.Index, error) {
	idx, err := locindex.New(g, cli.Index, locindex.DefaultConfig())
	if err != nil {
		return nil, err
	}
	err = idx.Load()
	if err == nil {
		return idx, nil
	}
	if !locindex.NeedsRebuild(err) || !cli.Rebuild {
		return nil, err
	}

	sigolo.Warnf("Location index unusable (%v), rebuilding", err)
	idx, err = locindex.New(g, cli.Index, locindex.DefaultConfig())
	if err != nil {
		return nil, err
	}
	if err := idx.Build(); err != nil {
		return nil, err
	}
	if err := idx.Flush(); err != nil {
		sigolo.Warnf("Could not persist rebuilt location index: %v", err)
	}
	return idx, nil
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
