package chat

import (
	"context"

	domain "github.com/reportchat/reportchat/internal/domain/chat"
)

// Service fronts the completion streamer so the transport layer never talks
// to the provider directly.
type Service struct {
	streamer domain.CompletionStreamer
}

func NewService(streamer domain.CompletionStreamer) *Service {
	return &Service{streamer: streamer}
}

func (s *Service) Stream(ctx context.Context, req domain.CompletionRequest, emit func(delta string) error) error {
	return s.streamer.Stream(ctx, req, emit)
}
