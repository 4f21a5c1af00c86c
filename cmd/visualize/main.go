package main

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/hauke96/sigolo/v2"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	"github.com/azybler/map_locator/pkg/api"
	"github.com/azybler/map_locator/pkg/geo"
	"github.com/azybler/map_locator/pkg/graph"
	"github.com/azybler/map_locator/pkg/locindex"
)

type options struct {
	Logging string `help:"Logging verbosity." enum:"info,debug,trace" short:"l" default:"info" env:"MAPLOC_LOGGING"`
	Graph   string `help:"Path to preprocessed graph binary." default:"graph.bin" env:"MAPLOC_GRAPH"`
	Index   string `help:"Path to the location index file." default:"graph.locidx" env:"MAPLOC_INDEX"`
	BBox    string `help:"Region to dump: minLat,minLng,maxLat,maxLng." name:"bbox" required:""`
	Tiles   bool   `help:"Include the index tiles as polygons."`
	Mode    string `help:"Only edges open to this travel mode (car, bike, foot)." enum:",car,bike,foot" default:""`
	Output  string `help:"Output GeoJSON file, - for stdout." short:"o" default:"region.geojson"`
}

var cli options

func main() {
	_ = godotenv.Load(".env")
	kong.Parse(
		&cli,
		kong.Name("visualize"),
		kong.Description("Dumps the location index tiles and edges of a region as GeoJSON."),
	)
	setLogLevel(cli.Logging)
	sigolo.FatalCheck(run(cli, os.Stdout))
}

// run writes the GeoJSON of opts.BBox to opts.Output, or to stdout for "-".
// Logging is moved to stderr first in that case so stdout carries only the
// document.
func run(opts options, stdout io.Writer) error {
	if opts.Output == "-" {
		logToStderr()
	}

	bbox, err := geo.ParseBBox(opts.BBox)
	if err != nil {
		return err
	}

	g, err := graph.ReadBinary(opts.Graph)
	if err != nil {
		return errors.Wrapf(err, "Unable to read graph %s", opts.Graph)
	}

	idx, err := openIndex(g, opts.Index)
	if err != nil {
		return err
	}
	defer idx.Close()

	var filter locindex.EdgeFilter
	if opts.Mode != "" {
		mode, err := graph.ParseAccess(opts.Mode)
		if err != nil {
			return err
		}
		filter = locindex.AccessFilter(g, mode)
	}

	start := time.Now()
	fc, err := api.RegionFeatures(idx, g, bbox, opts.Tiles, filter)
	if err != nil {
		return err
	}
	sigolo.Infof("Collected %d features in %s", len(fc.Features), time.Since(start))

	body, err := fc.MarshalJSON()
	if err != nil {
		return errors.Wrap(err, "Unable to encode GeoJSON")
	}
	return writeOutput(opts.Output, body, stdout)
}

// openIndex loads the persisted index, or builds one in memory when the file
// is missing or stale.
func openIndex(g *graph.Graph, path string) (*locindex.Index, error) {
	idx, err := locindex.New(g, path, locindex.DefaultConfig())
	if err != nil {
		return nil, err
	}
	err = idx.Load()
	if err == nil {
		return idx, nil
	}
	if !locindex.NeedsRebuild(err) {
		return nil, err
	}
	sigolo.Warnf("Location index unusable (%v), building it in memory", err)
	idx, err = locindex.New(g, path, locindex.DefaultConfig())
	if err != nil {
		return nil, err
	}
	if err := idx.Build(); err != nil {
		return nil, err
	}
	return idx, nil
}

func writeOutput(path string, body []byte, stdout io.Writer) error {
	w := stdout
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return errors.Wrapf(err, "Unable to create GeoJSON file %s", path)
		}
		defer f.Close()
		w = f
		sigolo.Infof("Writing GeoJSON to %s", path)
	}
	_, err := w.Write(body)
	return errors.Wrap(err, "Unable to write GeoJSON")
}

// logToStderr sends every log level to stderr. sigolo prints everything
// below errors to stdout by default.
func logToStderr() {
	for _, level := range []sigolo.Level{sigolo.LOG_PLAIN, sigolo.LOG_TRACE, sigolo.LOG_DEBUG, sigolo.LOG_INFO, sigolo.LOG_WARN} {
		// Despite its name this sets the writer of the level.
		sigolo.SetDefaultLevelString(level, os.Stderr)
	}
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
