package main

import (
	"os"

	"github.com/psantana5/mev-supervisor/cmd/mevsup/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
