package main

import (
	"os"

	"github.com/remote-claude/rcguard/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
