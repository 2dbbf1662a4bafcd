// Package grpc serves the EncryptionAdmin service: remote access to the
// profile and email migration jobs for operators. Every call needs an
// admin access token in the access_token metadata entry.
package grpc

import (
	"context"
	"errors"
	"net"

	"github.com/dmitrijs2005/openblind/internal/common"
	"github.com/dmitrijs2005/openblind/internal/logging"
	pb "github.com/dmitrijs2005/openblind/internal/proto"
	"github.com/dmitrijs2005/openblind/internal/server/profiles"
	"github.com/dmitrijs2005/openblind/internal/server/services"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Jobs is implemented by profiles.Migrator.
type Jobs interface {
	MigrateEncryption(ctx context.Context) (profiles.MigrationResult, error)
	VerifyEncryption(ctx context.Context) (profiles.VerificationResult, error)
	GetEncryptionStats(ctx context.Context) (profiles.EncryptionStats, error)
}

// EmailMigrator is implemented by services.UserService.
type EmailMigrator interface {
	MigrateEmails(ctx context.Context) (services.EmailMigrationResult, error)
}

type GRPCServer struct {
	pb.UnimplementedEncryptionAdminServer
	address   string
	jobs      Jobs
	emails    EmailMigrator
	logger    logging.Logger
	jwtSecret []byte
	health    *health.Server
}

var _ pb.EncryptionAdminServer = (*GRPCServer)(nil)

func NewGRPCServer(a string, l logging.Logger, jobs Jobs, emails EmailMigrator, secretKey string) *GRPCServer {
	return &GRPCServer{
		address:   a,
		logger:    l.With("module", "grpc_server"),
		jobs:      jobs,
		emails:    emails,
		jwtSecret: []byte(secretKey),
		health:    health.NewServer(),
	}
}

func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.callLog, s.adminAuth))
	pb.RegisterEncryptionAdminServer(srv, s)
	healthpb.RegisterHealthServer(srv, s.health)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is cancelled.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := s.newServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}

	return nil
}

func (s *GRPCServer) MigrateEncryption(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	res, err := s.jobs.MigrateEncryption(ctx)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return s.reply(ctx, res)
}

func (s *GRPCServer) VerifyEncryption(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	res, err := s.jobs.VerifyEncryption(ctx)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return s.reply(ctx, res)
}

func (s *GRPCServer) EncryptionStats(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	res, err := s.jobs.GetEncryptionStats(ctx)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return s.reply(ctx, res)
}

func (s *GRPCServer) MigrateEmails(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if s.emails == nil {
		return nil, status.Error(codes.Unimplemented, "email migration is not available")
	}
	res, err := s.emails.MigrateEmails(ctx)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return s.reply(ctx, res)
}

func (s *GRPCServer) reply(ctx context.Context, v any) (*structpb.Struct, error) {
	out, err := toStruct(v)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return out, nil
}

func (s *GRPCServer) toStatus(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "cancelled")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	case errors.Is(err, common.ErrorValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrorNotFound):
		return status.Error(codes.NotFound, "not found")
	}
	s.logger.Error(ctx, "admin call failed", "error", err)
	return status.Error(codes.Internal, "internal error")
}
