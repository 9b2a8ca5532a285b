package grpc_control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"signal-streamer/src/logger"
	"signal-streamer/src/models"
	"signal-streamer/src/stream"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// PipelineController is the orchestrator surface exposed over gRPC.
type PipelineController interface {
	Snapshot() []models.MPipelineStatus
	StopPipeline(symbol, reason string) error
	History(ctx context.Context, symbol, interval string) []models.MBar
}

// ControlService implements ControlServer.
type ControlService struct {
	Pipelines PipelineController
	Logger    *logger.Logger
}

// NewControlService creates a new instance of ControlService
func NewControlService(pipelines PipelineController, log *logger.Logger) *ControlService {
	return &ControlService{
		Pipelines: pipelines,
		Logger:    log,
	}
}

// -----------------------------------------------------------------------------

func (s *ControlService) ListPipelines(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error) {
	return toStruct("pipelines", s.Pipelines.Snapshot())
}

// -----------------------------------------------------------------------------

// GetHistory expects {"symbol": "...", "interval": "..."}; interval is optional.
func (s *ControlService) GetHistory(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	symbol := strings.ToUpper(strings.TrimSpace(stringField(req, "symbol")))
	if symbol == "" {
		return nil, status.Error(codes.InvalidArgument, "symbol is required")
	}

	bars := s.Pipelines.History(ctx, symbol, stringField(req, "interval"))
	if bars == nil {
		bars = []models.MBar{}
	}
	return toStruct("bars", bars)
}

// -----------------------------------------------------------------------------

// StopPipeline expects {"symbol": "...", "reason": "..."}.
func (s *ControlService) StopPipeline(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	symbol := strings.ToUpper(strings.TrimSpace(stringField(req, "symbol")))
	if symbol == "" {
		return nil, status.Error(codes.InvalidArgument, "symbol is required")
	}

	if err := s.Pipelines.StopPipeline(symbol, stringField(req, "reason")); err != nil {
		if errors.Is(err, stream.ErrNoPipeline) {
			return nil, status.Errorf(codes.NotFound, "no pipeline for %s", symbol)
		}
		return nil, status.Error(codes.Internal, err.Error())
	}

	s.Logger.Info("gRPC: stopped pipeline %s", symbol)
	return structpb.NewStruct(map[string]interface{}{
		"success": true,
		"message": fmt.Sprintf("Stopped pipeline %s", symbol),
	})
}

// -----------------------------------------------------------------------------

func stringField(req *structpb.Struct, key string) string {
	if req == nil {
		return ""
	}
	if v, ok := req.GetFields()[key]; ok {
		return v.GetStringValue()
	}
	return ""
}

// -----------------------------------------------------------------------------

// toStruct wraps v under key after a JSON round trip, so struct tags decide
// the field names.
func toStruct(key string, v interface{}) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	out, err := structpb.NewStruct(map[string]interface{}{key: generic})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}
