// Command scanvault ingests nmap XML reports into PostgreSQL or MongoDB.
package main

import "github.com/anstrom/scanvault/cmd/cli"

// Build information, set by ldflags.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	cli.SetVersion(version, commit, buildTime)
	cli.Execute()
}
