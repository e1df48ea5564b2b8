package main

import (
	"os"

	"github.com/devpayr/devpayr-go/cmd/devpayr/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
