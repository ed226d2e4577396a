package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/tomatyss/chatter/internal/domain"
	"github.com/tomatyss/chatter/internal/infra/tracer"
)

// Execute is the standard tool pipeline: start the tool span -> decode
// params -> run handler -> record the outcome on the span.
//
// The handler should return:
//   - (*domain.ToolResult, nil) for success and for soft failures
//   - (nil, error) when the call itself is malformed; the dispatcher turns
//     this into a soft "Tool execution failed" result
func Execute[P any](
	ctx context.Context,
	call domain.ToolCall,
	logger *slog.Logger,
	handler func(ctx context.Context, span trace.Span, params P) (*domain.ToolResult, error),
) (*domain.ToolResult, error) {
	ctx, span := tracer.StartToolSpan(ctx, call.Tool, call.ID)
	defer span.End()

	p, err := DecodeParams[P](call.Parameters)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, domain.NewDomainError(call.Tool, domain.ErrInvalidInput, err.Error())
	}

	result, err := handler(ctx, span, p)
	if err != nil {
		tracer.RecordError(span, err)
		logger.Warn("tool."+call.Tool+" failed", "error", err)
		return nil, err
	}

	span.SetAttributes(tracer.BoolAttr("tool.success", result.Success))
	if result.Success {
		tracer.SetOK(span)
	} else {
		tracer.RecordError(span, errors.New(result.Message))
	}
	return result, nil
}

// DecodeParams converts a call's parameter map into the typed struct P.
// Fields are matched by their json tags; a value of the wrong JSON type is
// an error.
func DecodeParams[P any](params map[string]any) (P, error) {
	var p P
	if len(params) == 0 {
		return p, nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return p, fmt.Errorf("encode params: %w", err)
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("invalid params: %w", err)
	}
	return p, nil
}

// MissingParam reports a parameter a tool cannot run without.
func MissingParam(tool, name string) error {
	return domain.NewDomainError(tool, domain.ErrMissingParameter, fmt.Sprintf("'%s'", name))
}
