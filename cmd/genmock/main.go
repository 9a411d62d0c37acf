// Command genmock generates a deterministic Open Brewery DB style fixture for
// offline runs and tests. It writes the raw layer file the extract stage
// would produce, plus the gold counts the pipeline is expected to derive
// from it, computed with the real domain package.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  --raw-dir data/mock/raw \
//	  --raw-name breweries \
//	  --gold-out data/mock/expected_gold.json \
//	  --count 200
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/couchcryptid/brewery-data-etl/internal/adapter/rawstore"
	"github.com/couchcryptid/brewery-data-etl/internal/domain"
)

type location struct {
	city, state, country string
	lat, lon             float64
}

var locations = []location{
	{"Denver", "Colorado", "United States", 39.7392, -104.9903},
	{"Boulder", "Colorado", "United States", 40.0150, -105.2705},
	{"Portland", "Oregon", "United States", 45.5152, -122.6784},
	{"San Diego", "California", "United States", 32.7157, -117.1611},
	{"Dublin", "Leinster", "Ireland", 53.3498, -6.2603},
	{"Cork", "Munster", "Ireland", 51.8985, -8.4756},
	{"Glasgow", "Scotland", "Scotland", 55.8642, -4.2518},
}

var breweryTypes = []string{"micro", "nano", "regional", "brewpub", "large", "planning", "bar", "contract", "proprietor", "closed"}

func main() {
	if err := run(os.Args[1:], os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "genmock:", err)
		os.Exit(1)
	}
}

func run(args []string, logOut io.Writer) error {
	fs := pflag.NewFlagSet("genmock", pflag.ContinueOnError)
	rawDir := fs.String("raw-dir", "", "directory for the raw fixture")
	rawName := fs.String("raw-name", "breweries", "raw fixture base name, without .json")
	goldOut := fs.String("gold-out", "", "output path for the expected gold counts")
	count := fs.Int("count", 100, "number of breweries to generate")
	seed := fs.Uint64("seed", 1, "random seed")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *rawDir == "" || *goldOut == "" {
		return fmt.Errorf("missing required flags: --raw-dir, --gold-out")
	}
	if *count < 1 {
		return fmt.Errorf("--count must be positive")
	}

	logger := slog.New(slog.NewTextHandler(logOut, nil))
	records := generate(*count, *seed)

	if err := rawstore.NewStore(logger).Save(records, *rawDir, *rawName); err != nil {
		return err
	}

	counts, err := expectedGold(records)
	if err != nil {
		return fmt.Errorf("derive gold counts: %w", err)
	}
	if err := writeJSON(*goldOut, counts); err != nil {
		return err
	}

	logger.Info("fixture written", "records", len(records), "groups", len(counts), "gold_out", *goldOut)
	return nil
}

// generate builds n breweries. The address fields cycle through every
// address_1/street combination the transform distinguishes.
func generate(n int, seed uint64) []domain.Record {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	records := make([]domain.Record, 0, n)

	for i := range n {
		loc := locations[rng.IntN(len(locations))]
		line := fmt.Sprintf("%d %s St", 100+rng.IntN(900), []string{"Main", "Oak", "Elm", "Quay", "Mill"}[rng.IntN(5)])

		var address1, street any
		switch i % 5 {
		case 0:
			address1, street = line, line
		case 1:
			street = line
		case 2:
			address1 = line
		case 3:
			address1, street = line, line+" Rear"
		}

		var phone any
		if rng.IntN(3) > 0 {
			phone = fmt.Sprintf("%010d", rng.Int64N(1e10))
		}

		records = append(records, domain.Record{
			"id":             fmt.Sprintf("mock-%04d", i+1),
			"name":           fmt.Sprintf("Mock Brewery %d", i+1),
			"brewery_type":   breweryTypes[rng.IntN(len(breweryTypes))],
			"address_1":      address1,
			"address_2":      nil,
			"address_3":      nil,
			"street":         street,
			"city":           loc.city,
			"state":          loc.state,
			"state_province": loc.state,
			"postal_code":    strconv.Itoa(10000 + rng.IntN(89999)),
			"country":        loc.country,
			"longitude":      json.Number(strconv.FormatFloat(loc.lon, 'f', -1, 64)),
			"latitude":       json.Number(strconv.FormatFloat(loc.lat, 'f', -1, 64)),
			"phone":          phone,
			"website_url":    nil,
		})
	}
	return records
}

func expectedGold(records []domain.Record) ([]domain.LocationCount, error) {
	silver, err := domain.Transform(domain.Normalize(records))
	if err != nil {
		return nil, err
	}
	return domain.Aggregate(silver)
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
