package main

import (
	"os"

	"gtfsaudit.onebusaway.org/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
