// Command switchyard routes staged records into destination tables.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/roach88/switchyard/internal/cli"
)

func main() {
	// Load .env if present (Overload overwrites existing env vars).
	_ = godotenv.Overload()

	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
