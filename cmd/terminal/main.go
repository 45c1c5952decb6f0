package main

import (
	"os"

	"github.com/kiwari-pos/terminal/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:]))
}
