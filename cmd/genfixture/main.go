// Command genfixture writes small synthetic NWM retrospective stores to a
// local mirror directory so the extract and sweep commands can run offline
// with STORE_BACKEND=file and STORE_ROOT pointing at the same directory.
//
// Usage:
//
//	go run ./cmd/genfixture -dir data/mirror
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"

	"github.com/couchcryptid/nwm-retrospective-etl/internal/adapter/objectstore"
	"github.com/couchcryptid/nwm-retrospective-etl/internal/domain"
	"github.com/couchcryptid/nwm-retrospective-etl/internal/fixture"
	"github.com/couchcryptid/nwm-retrospective-etl/internal/observability"
	"github.com/couchcryptid/nwm-retrospective-etl/internal/zarr"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	dir := flag.String("dir", "", "mirror directory to write stores into")
	grid := flag.Bool("grid", true, "also write the gridded rtout store")
	flag.Parse()

	if *dir == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -dir")
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetricsForTesting()
	ctx := context.Background()

	write := func(code string, fn func(context.Context, zarr.Writer) error) error {
		locator := domain.BuildStorePath(code)
		b, err := objectstore.CreateFile(*dir, locator, logger, metrics)
		if err != nil {
			return err
		}
		defer b.Close()
		if err := fn(ctx, b); err != nil {
			return fmt.Errorf("%s: %w", code, err)
		}
		fmt.Printf("wrote %s\n", locator)
		return nil
	}

	if err := write("chrtout", func(ctx context.Context, w zarr.Writer) error {
		return fixture.WriteChannel(ctx, w, fixture.DefaultChannel())
	}); err != nil {
		return err
	}
	if *grid {
		if err := write("rtout", func(ctx context.Context, w zarr.Writer) error {
			return fixture.WriteGrid(ctx, w, fixture.DefaultGrid())
		}); err != nil {
			return err
		}
	}
	return nil
}
