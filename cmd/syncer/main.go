// Command syncer pulls listings and calendars from Hostaway into MySQL,
// either on a schedule or as a single run.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
