package server

import (
	"context"
	"errors"
	"strings"

	"github.com/devghori1264/vinreport/internal/models"
	"github.com/devghori1264/vinreport/internal/pipeline"
	"github.com/devghori1264/vinreport/internal/storage"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

var ErrVINRequired = errors.New("vin required")

// Runner executes one report run.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) models.PipelineOutcome
}

// Catalog looks up stored artifacts.
type Catalog interface {
	Get(ctx context.Context, vin string) (models.ReportArtifact, error)
	List(ctx context.Context) ([]models.ReportArtifact, error)
}

// Server is the report service shared by the gRPC and HTTP surfaces.
type Server struct {
	runner  Runner
	catalog Catalog
	log     *zap.Logger
}

// New creates a new server instance.
func New(runner Runner, catalog Catalog, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{runner: runner, catalog: catalog, log: log}
}

// RegisterGRPC registers the gRPC handlers.
func (s *Server) RegisterGRPC(gs grpc.ServiceRegistrar) {
	gs.RegisterService(&serviceDesc, s)
}

// Generate runs the pipeline for vin. An empty email skips notification.
func (s *Server) Generate(ctx context.Context, vin, email string) models.PipelineOutcome {
	return s.runner.Run(ctx, pipeline.Request{VIN: vin, Email: email})
}

// Lookup returns the stored artifact for vin, or storage.ErrNotFound.
func (s *Server) Lookup(ctx context.Context, vin string) (models.ReportArtifact, error) {
	vin = strings.TrimSpace(vin)
	if vin == "" {
		return models.ReportArtifact{}, ErrVINRequired
	}
	a, err := s.catalog.Get(ctx, vin)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.log.Error("artifact lookup failed", zap.String("vin", vin), zap.Error(err))
	}
	return a, err
}

// List returns metadata for every stored report.
func (s *Server) List(ctx context.Context) ([]models.ReportArtifact, error) {
	return s.catalog.List(ctx)
}
