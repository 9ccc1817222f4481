package main

import (
	"errors"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/roach88/cohortql/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err == nil {
		return
	}

	// Commands report their own failures; anything else is a usage error
	// from cobra.
	var exitErr *cli.ExitError
	if !errors.As(err, &exitErr) {
		log.Error().Err(err).Msg("")
	}
	os.Exit(cli.GetExitCode(err))
}
