package main

import (
	"os"

	"librarydesk/cli"
)

func main() {
	os.Exit(cli.Execute())
}
