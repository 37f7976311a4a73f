// Command test-matrix is a manual test for the virtual switch matrix.
// Run it, then press keys on the desktop keyboard to see which
// intersections close. Press Ctrl+C to exit.
//
// Usage:
//
//	go run ./cmd/test-matrix [--interval 50ms]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chaz8081/blekbd/internal/config"
	"github.com/chaz8081/blekbd/internal/keymap"
	"github.com/chaz8081/blekbd/internal/vmatrix"
)

func main() {
	interval := flag.Duration("interval", 50*time.Millisecond, "how often to sample the matrix")
	flag.Parse()

	layout, err := config.Default().Layout()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	m, err := vmatrix.New(layout.Rows(), layout.Cols())
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Sampling a %dx%d matrix with the default layout...\n", layout.Rows(), layout.Cols())
	fmt.Println("Press Ctrl+C to exit.")

	go func() {
		if err := vmatrix.NewHookSource(m, layout).Run(ctx); err != nil {
			fmt.Printf("Hook error: %v\n", err)
		}
	}()

	m.SetColumnsInputPullup()
	prev := make([]uint32, layout.Rows())
	t := time.NewTicker(*interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nDone.")
			return
		case <-t.C:
		}
		for out := range layout.Rows() {
			m.DriveRowLow(out)
			cols := ^m.ReadColumns() & layout.ValidMask(out)
			m.DriveRowHighZ(out)
			if cols == prev[out] {
				continue
			}
			for in := range layout.Cols() {
				bit := uint32(1) << in
				if cols&bit == prev[out]&bit {
					continue
				}
				state := "UP  "
				if cols&bit != 0 {
					state = "DOWN"
				}
				fmt.Printf("%s row %d col %d  %s\n", state, out, in, layout.Lookup(keymap.LayerPrimary, out, in))
			}
			prev[out] = cols
		}
	}
}
