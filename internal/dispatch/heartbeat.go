package dispatch

import (
	"context"

	"github.com/keelfs/keeld/internal/codes"
)

// handleHeartbeat requires no auth and no body, per §4.9's category table.
func handleHeartbeat(_ context.Context, _ *Registry, _ *Request) (*Response, error) {
	return &Response{Code: codes.Heartbeat}, nil
}
