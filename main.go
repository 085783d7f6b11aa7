// The main package for the focus-collector executable. It defers all
// execution to the Cobra CLI layer.
package main

import (
	"os"

	"github.com/focusops/focus-collector/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
