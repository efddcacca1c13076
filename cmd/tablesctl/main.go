// Command tablesctl manages table sessions from the terminal.
package main

import (
	"os"

	"github.com/JonMunkholm/tablesync/internal/cli"
	"github.com/joho/godotenv"
)

func main() {
	// A missing .env is fine; the environment still applies.
	_ = godotenv.Load()

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
