package main

import (
	"os"

	"github.com/contenant/contenant/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
