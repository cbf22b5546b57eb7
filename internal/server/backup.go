package server

import (
	"context"
	"log/slog"
	"path/filepath"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/cobrancas/internal/backup"
	"github.com/joseph-ayodele/cobrancas/internal/common"
	"github.com/joseph-ayodele/cobrancas/internal/utils"
)

// BackupServiceName is the fully qualified gRPC service name.
const BackupServiceName = "cobrancas.v1.BackupService"

// BackupServer is the gRPC surface of the backup service. Requests and responses are
// google.protobuf.Struct messages carrying the same fields as the HTTP API.
type BackupServer interface {
	Export(context.Context, *structpb.Struct) (*structpb.Struct, error)
	BackupAndCommit(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Restore(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListBackups(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Status(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type backupMethod func(BackupServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, call backupMethod) grpc.MethodDesc {
	fullMethod := "/" + BackupServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(BackupServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(BackupServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var backupServiceDesc = grpc.ServiceDesc{
	ServiceName: BackupServiceName,
	HandlerType: (*BackupServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("Export", BackupServer.Export),
		unaryHandler("BackupAndCommit", BackupServer.BackupAndCommit),
		unaryHandler("Restore", BackupServer.Restore),
		unaryHandler("ListBackups", BackupServer.ListBackups),
		unaryHandler("Status", BackupServer.Status),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "cobrancas/v1/backup.proto",
}

// RegisterBackupServer registers srv on s.
func RegisterBackupServer(s grpc.ServiceRegistrar, srv BackupServer) {
	s.RegisterService(&backupServiceDesc, srv)
}

type BackupService struct {
	svc    *backup.Service
	logger *slog.Logger
}

func NewBackupService(svc *backup.Service, logger *slog.Logger) *BackupService {
	if logger == nil {
		logger = slog.Default()
	}
	return &BackupService{svc: svc, logger: logger}
}

func (s *BackupService) Export(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ctx = common.WithTrigger(common.EnsureRequestID(ctx), "grpc")
	mode := backup.ParseMode(utils.StringField(req, "type"))

	path, err := s.svc.Export(ctx, mode)
	if err != nil {
		s.logger.Error("export failed", "mode", mode, "request_id", common.RequestIDFromContext(ctx), "error", err)
		return nil, common.GRPCStatus(err)
	}
	return s.reply(map[string]any{
		"success":     true,
		"message":     "Backup exportado com sucesso",
		"filepath":    path,
		"filename":    filepath.Base(path),
		"backup_type": string(mode),
	})
}

func (s *BackupService) BackupAndCommit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ctx = common.WithTrigger(common.EnsureRequestID(ctx), "grpc")
	mode := backup.ParseMode(utils.StringField(req, "type"))

	res := s.svc.BackupAndCommit(ctx, mode, utils.StringField(req, "message"))
	if !res.Success {
		s.logger.Error("backup and commit failed", "mode", mode, "request_id", common.RequestIDFromContext(ctx), "error", res.Error)
		return nil, status.Error(codes.Internal, res.Error)
	}
	return s.reply(res)
}

func (s *BackupService) Restore(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ctx = common.WithTrigger(common.EnsureRequestID(ctx), "grpc")
	filename := utils.StringField(req, "filename")
	if filename == "" {
		return nil, common.InvalidArgumentError("filename is required")
	}

	res, err := s.svc.Restore(ctx, filename)
	if err != nil {
		s.logger.Error("restore failed", "filename", filename, "request_id", common.RequestIDFromContext(ctx), "error", err)
		return nil, common.GRPCStatus(err)
	}
	return s.reply(res)
}

func (s *BackupService) ListBackups(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	files := s.svc.ListBackups(ctx)
	return s.reply(map[string]any{
		"backup_files": files,
		"total_files":  len(files),
	})
}

func (s *BackupService) Status(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return s.reply(s.svc.Status(ctx))
}

func (s *BackupService) reply(v any) (*structpb.Struct, error) {
	out, err := utils.ToStruct(v)
	if err != nil {
		s.logger.Error("failed to encode response", "error", err)
		return nil, common.InternalError("failed to encode response")
	}
	return out, nil
}
