package main

import (
	"os"

	"github.com/CogitoSoftwareOrg/hackseeker/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
