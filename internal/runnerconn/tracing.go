// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package runnerconn

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/tombee/wfdebug/internal/runnerconn"

func defaultTracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// startRequestSpan starts the client span of a runner request.
func startRequestSpan(ctx context.Context, tracer trace.Tracer, command string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "runner."+command,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("runner.command", command)),
	)
}

// endRequestSpan records the outcome and ends span.
func endRequestSpan(span trace.Span, seq int, err error) {
	span.SetAttributes(attribute.Int("runner.seq", seq))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
