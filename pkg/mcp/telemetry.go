package mcp

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// tracerName identifies this package's spans to whatever TracerProvider a
// host application installs. The core itself never configures an exporter
// or SDK, it only asks the global otel.Tracer for one, which defaults to
// a no-op implementation until a host calls otel.SetTracerProvider.
const tracerName = "github.com/gridctl/mcpserverd/pkg/mcp"

func newTracer() trace.Tracer {
	return otel.Tracer(tracerName)
}
