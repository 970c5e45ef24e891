// The main package for the artifact-miner executable.
package main

import (
	"github.com/histocoin/artifact-miner/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
