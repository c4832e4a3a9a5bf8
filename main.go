// The main package for the scheduled-publisher executable.
package main

import (
	"github.com/JakeFAU/scheduled-publisher/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
