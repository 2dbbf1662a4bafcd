package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/dmitrijs2005/openblind/internal/cryptctl"
	"github.com/dmitrijs2005/openblind/internal/logging"
	"github.com/dmitrijs2005/openblind/internal/server/config"
)

func main() {

	cmd, opts, args, err := cryptctl.ParseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg := config.LoadConfig()
	logger := logging.NewJSONLogger(os.Stderr, cfg.LogLevel)

	if err := cryptctl.Execute(context.Background(), cmd, opts, args, cfg, logger, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, cryptctl.ErrUsage) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		log.Fatalf("%v", err)
	}

}
