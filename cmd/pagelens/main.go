package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/pagelens/pagelens/internal/cmd"
)

// Build metadata injected via ldflags.
var (
	version   = "dev"
	commit    = "HEAD"
	buildDate = "unknown"
)

func main() {
	_ = godotenv.Load()

	cmd.SetVersionInfo(version, commit, buildDate)
	os.Exit(cmd.Execute())
}
