package main

import (
	"fmt"
	"os"

	"github.com/arothstein/chatguard/internal/cli"
)

var version = "dev"

func main() {
	app := &cli.App{Version: version}
	if err := cli.NewRootCmd(app).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
