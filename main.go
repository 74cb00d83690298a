package main

import (
	"os"

	"github.com/relayguard/relayguard/internal/cli"
)

func main() {
	cli.InitCLI()
	os.Exit(cli.ExecuteWithErrorCode(os.Args[1:]))
}
