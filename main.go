// The main package for the libgen-scraper executable.
package main

import (
	"github.com/mrtz90/Libgen-Scraper-CLI/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
