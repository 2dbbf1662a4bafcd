package grpc

import (
	"context"

	"github.com/dmitrijs2005/openblind/internal/common"
	pb "github.com/dmitrijs2005/openblind/internal/proto"
	"github.com/dmitrijs2005/openblind/internal/server/profiles"
	"github.com/dmitrijs2005/openblind/internal/server/services"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// AdminClient calls EncryptionAdmin with a fixed access token and decodes
// the results into their typed form.
type AdminClient struct {
	client pb.EncryptionAdminClient
	token  string
}

func NewAdminClient(conn grpc.ClientConnInterface, accessToken string) *AdminClient {
	return &AdminClient{client: pb.NewEncryptionAdminClient(conn), token: accessToken}
}

// Dial opens a plaintext connection to addr. The admin port is meant to be
// reachable only from the operator network.
func Dial(addr string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	return grpc.NewClient(addr, opts...)
}

type adminMethod func(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)

func (c *AdminClient) invoke(ctx context.Context, call adminMethod, out any) error {
	ctx = metadata.AppendToOutgoingContext(ctx, common.AccessTokenHeaderName, c.token)
	res, err := call(ctx, &emptypb.Empty{})
	if err != nil {
		return err
	}
	return fromStruct(res, out)
}

func (c *AdminClient) MigrateEncryption(ctx context.Context) (profiles.MigrationResult, error) {
	var out profiles.MigrationResult
	err := c.invoke(ctx, c.client.MigrateEncryption, &out)
	return out, err
}

func (c *AdminClient) VerifyEncryption(ctx context.Context) (profiles.VerificationResult, error) {
	var out profiles.VerificationResult
	err := c.invoke(ctx, c.client.VerifyEncryption, &out)
	return out, err
}

func (c *AdminClient) GetEncryptionStats(ctx context.Context) (profiles.EncryptionStats, error) {
	var out profiles.EncryptionStats
	err := c.invoke(ctx, c.client.EncryptionStats, &out)
	return out, err
}

func (c *AdminClient) MigrateEmails(ctx context.Context) (services.EmailMigrationResult, error) {
	var out services.EmailMigrationResult
	err := c.invoke(ctx, c.client.MigrateEmails, &out)
	return out, err
}
