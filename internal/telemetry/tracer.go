package telemetry

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Tracer is the package-level tracer used by the orchestrator's per-stage
// spans, matching the teacher's orchestratorTracer package var.
var Tracer trace.Tracer = otel.Tracer("riverwatch/internal/orchestrator")
