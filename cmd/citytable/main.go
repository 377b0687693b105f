// Command citytable builds the location table from a raw US cities CSV.
//
//	citytable -in uscities.csv -out data/cities.csv
package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/kjstillabower/mintemp-dashboard/internal/locations"
	"github.com/kjstillabower/mintemp-dashboard/internal/observability"
)

func main() {
	in := flag.String("in", "uscities.csv", "raw cities CSV with city, state_name, population, lat, lng")
	out := flag.String("out", "data/cities.csv", "location table to write")
	flag.Parse()

	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	n, err := run(*in, *out)
	if err != nil {
		logger.Fatal("build city table", zap.Error(err))
	}
	logger.Info("city table written", zap.String("in", *in), zap.String("out", *out), zap.Int("cities", n))
}

// run builds the table and writes it atomically via a temp file.
func run(inPath, outPath string) (int, error) {
	src, err := os.Open(inPath)
	if err != nil {
		return 0, err
	}
	defer src.Close()

	records, err := locations.Build(src)
	if err != nil {
		return 0, err
	}

	tmp := outPath + ".tmp"
	dst, err := os.Create(tmp)
	if err != nil {
		return 0, err
	}
	if err := locations.Write(dst, records); err != nil {
		dst.Close()
		os.Remove(tmp)
		return 0, err
	}
	if err := dst.Close(); err != nil {
		os.Remove(tmp)
		return 0, err
	}
	if err := os.Rename(tmp, outPath); err != nil {
		return 0, err
	}
	return len(records), nil
}
