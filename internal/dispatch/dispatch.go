package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/keelfs/keeld/internal/activitylog"
	"github.com/keelfs/keeld/internal/codes"
	"github.com/keelfs/keeld/internal/logger"
	"github.com/keelfs/keeld/internal/telemetry"
	"github.com/keelfs/keeld/internal/wire"
	"github.com/keelfs/keeld/pkg/wireschema"
	"go.opentelemetry.io/otel/attribute"
)

// Dispatch implements §4.9's top-level routing: validate required
// components, authenticate where the routing table entry demands it,
// route on subcategory, run the bound handler, and translate whatever it
// returns into a wire Response. It never returns an error itself — every
// outcome, success or failure, becomes a Response so internal/server can
// write a header unconditionally.
func (r *Registry) Dispatch(ctx context.Context, req *Request) *Response {
	ctx, span := telemetry.StartSpan(ctx, "dispatch.route")
	defer span.End()
	telemetry.SetAttributes(ctx,
		attribute.String("keeld.category", req.Header.Category.String()),
		attribute.String("keeld.wire_schema_version", wireschema.Version),
	)

	h := req.Header

	if h.Category == wire.CategoryHeartbeat {
		resp, err := handleHeartbeat(ctx, r, req)
		return r.finish(ctx, req, "HEARTBEAT", resp, err)
	}

	e, ok := lookupEntry(h.Category, h.Subcategory)
	if !ok {
		err := codes.New(codes.UnsupportedOperation, "no handler bound for this category/subcategory")
		return r.finish(ctx, req, "UNKNOWN", nil, err)
	}

	telemetry.SetAttributes(ctx, attribute.String("keeld.operation", e.Name))

	if e.NeedsAuth && (req.Auth == nil || !req.Auth.IsAuthentication()) {
		err := codes.New(codes.InvalidAuthSemantic, "this operation requires bearer authentication")
		return r.finish(ctx, req, e.Name, nil, err)
	}

	resp, err := e.Handler(ctx, r, req)
	return r.finish(ctx, req, e.Name, resp, err)
}

// finish converts a handler's (*Response, error) pair into a guaranteed
// non-nil Response and records an activity log entry for it, per §7's
// propagation policy: recognized protocol errors become the matching
// response code; anything else is InternalServerError logged at CRITICAL.
func (r *Registry) finish(ctx context.Context, req *Request, operation string, resp *Response, err error) *Response {
	critical := false
	if err != nil {
		var pe *codes.ProtocolError
		if errors.As(err, &pe) {
			resp = &Response{Code: pe.Code, Description: pe.Description, Partial: pe.Partial}
		} else {
			logger.ErrorCtx(ctx, "unrecognized dispatch error", logger.Err(err))
			telemetry.RecordError(ctx, err)
			resp = &Response{Code: codes.ServerErrorGeneric, Description: "internal server error"}
			critical = true
		}
	}
	if resp == nil {
		resp = &Response{Code: codes.ServerErrorGeneric, Description: "handler returned no response"}
	}

	r.logActivity(ctx, req, operation, resp, critical)
	return resp
}

func (r *Registry) logActivity(ctx context.Context, req *Request, operation string, resp *Response, critical bool) {
	if r.Activity == nil {
		return
	}
	identity := ""
	if req.Auth != nil {
		identity = req.Auth.Identity
	}
	detail := resp.Description
	if critical {
		detail = "CRITICAL: " + detail
	}
	entry := activitylog.Entry{
		Identity:    identity,
		Category:    req.Header.Category.String(),
		Subcategory: operation,
		Code:        string(resp.Code),
		Filename:    resp.Filename,
		Detail:      detail,
		OccurredAt:  time.Now(),
	}
	if !r.Activity.Enqueue(entry) {
		logger.WarnCtx(ctx, "activity log queue full, entry dropped", logger.Category(entry.Category), logger.Subcategory(entry.Subcategory))
	}
}
