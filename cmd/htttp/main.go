// Command htttp runs one peer of the HTTTP protocol.
package main

import (
	"fmt"
	"os"

	"github.com/htttp-net/htttp/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
