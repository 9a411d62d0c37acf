package main

import (
	"os"

	"github.com/couchcryptid/brewery-data-etl/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
