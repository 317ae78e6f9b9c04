package main

import (
	"os"

	ephemeracmder "github.com/papercomputeco/ephemera/cmd/ephemera"
)

func main() {
	cmd := ephemeracmder.NewEphemeraCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
