package grpc

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dmitrijs2005/crosspost/internal/common"
	"github.com/dmitrijs2005/crosspost/internal/server/services"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

func (s *GRPCServer) RunDueBatch(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {

	sum, err := s.dispatcher.RunDueBatch(ctx)
	if err != nil {
		s.logger.Error(ctx, "dispatch run failed", "error", err)
		return nil, toStatus(err)
	}

	s.logger.Info(ctx, "dispatch run", "processed", sum.Processed, "succeeded", sum.Succeeded, "failed", sum.Failed, "skipped", sum.Skipped)

	out, err := summaryToStruct(sum)
	if err != nil {
		s.logger.Error(ctx, "encode summary", "error", err)
		return nil, status.Error(codes.Internal, "internal error")
	}
	return out, nil
}

// summaryToStruct goes through JSON so the struct mirrors the HTTP response.
func summaryToStruct(sum *services.BatchSummary) (*structpb.Struct, error) {
	b, err := json.Marshal(sum)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "canceled")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	case errors.Is(err, common.ErrVaultLocked):
		return status.Error(codes.FailedPrecondition, err.Error())
	}
	return status.Error(codes.Internal, "internal error")
}
