// Command server runs the OpenBlind HTTP API and the EncryptionAdmin gRPC
// service in one process.
package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/openblind/internal/buildinfo"
	"github.com/dmitrijs2005/openblind/internal/server"
	"github.com/dmitrijs2005/openblind/internal/server/config"
)

func main() {
	buildinfo.PrintBuildData(os.Stdout)

	ctx := context.Background()
	app, err := server.NewApp(ctx, config.LoadConfig())
	if err != nil {
		// a missing ENCRYPTION_KEY lands here
		log.Fatalf("startup: %v", err)
	}
	if err := app.Run(ctx); err != nil {
		log.Fatalf("run: %v", err)
	}
}
