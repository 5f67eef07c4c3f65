// Command deskrec captures the primary display and, optionally, the
// system audio loopback into a single Motion-JPEG + PCM AVI file.
package main

import (
	"fmt"
	"os"

	"github.com/babelcloud/deskrec/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
