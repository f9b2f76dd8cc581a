package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/servicesync/internal/cli"
)

func main() {
	// Load .env file if it exists; real environment variables take precedence.
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	} else {
		slog.Debug("loaded .env file")
	}

	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
