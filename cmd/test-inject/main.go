// Command test-inject is a manual test for report injection.
// It waits 3 seconds, then replays keyboard reports that type a test word.
// Focus a text editor before the countdown finishes.
//
// Usage:
//
//	go run ./cmd/test-inject [--word hello] [--gap 30ms]
package main

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/chaz8081/blekbd/internal/inject"
	"github.com/chaz8081/blekbd/internal/keymap"
	"github.com/chaz8081/blekbd/internal/report"
)

func main() {
	word := flag.String("word", "hello", "word to type, letters and digits only")
	gap := flag.Duration("gap", 30*time.Millisecond, "delay between reports")
	flag.Parse()

	fmt.Printf("Will type %q in 3 seconds...\n", *word)
	fmt.Println("Focus a text editor now!")

	for i := 3; i > 0; i-- {
		fmt.Printf("%d...\n", i)
		time.Sleep(time.Second)
	}

	inj := inject.NewInjector(inject.Robotgo{})
	for _, r := range strings.ToUpper(*word) {
		usage, ok := keymap.Usage(string(r))
		if !ok {
			fmt.Printf("Skipping %q: no key\n", r)
			continue
		}
		press := make([]byte, report.NormalLen)
		press[2] = usage
		for _, rep := range [][]byte{press, make([]byte, report.NormalLen)} {
			if err := inj.SendReport(report.KindNormal, rep); err != nil {
				fmt.Printf("Error: %v\n", err)
				return
			}
			time.Sleep(*gap)
		}
	}

	fmt.Println("\nDone!")
}
