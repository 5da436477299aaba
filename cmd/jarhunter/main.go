package main

import (
	"errors"
	"os"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/buemura/jarhunter/internal/cli"
)

func main() {
	_ = godotenv.Load(".env")

	err := cli.Execute()
	if err != nil {
		var ee *cli.ExitError
		if !errors.As(err, &ee) || ee.Err != nil {
			color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}
	os.Exit(cli.ExitCode(err))
}
