// Command medhelp serves the MedHelp web frontend behind the route guard and
// offers command-line access to the session and module resolver.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
