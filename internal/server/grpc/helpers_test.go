package grpc

import (
	"context"

	"github.com/dmitrijs2005/openblind/internal/common"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

func insecureCreds() credentials.TransportCredentials { return insecure.NewCredentials() }

func metadataCtx(token string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs(common.AccessTokenHeaderName, token))
}
