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

// Package tracing installs the OpenTelemetry SDK so that the spans around
// runner requests are exported.
//
// Without Setup the global no-op provider is used and spans cost nothing.
package tracing

import (
	"fmt"
	"io"
)

// Exporter names.
const (
	ExporterStdout   = "stdout"
	ExporterOTLPHTTP = "otlp-http"
	ExporterOTLPGRPC = "otlp-grpc"
)

// Config holds tracing configuration.
type Config struct {
	// Enabled controls whether spans are exported.
	Enabled bool

	// Exporter is one of ExporterStdout, ExporterOTLPHTTP or ExporterOTLPGRPC.
	Exporter string

	// Endpoint is the collector host:port for the OTLP exporters. Empty
	// uses the exporter's default or OTEL_EXPORTER_OTLP_ENDPOINT.
	Endpoint string

	// Insecure disables TLS for the OTLP exporters.
	Insecure bool

	// SampleRate is the fraction of traces recorded (0.0 - 1.0).
	SampleRate float64

	// ServiceName identifies this process in traces.
	ServiceName string

	// ServiceVersion is the application version.
	ServiceVersion string

	// Writer receives stdout exporter output. Defaults to os.Stderr, since
	// stdout may carry the debug protocol.
	Writer io.Writer
}

// Validate checks the exporter and sample rate.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	switch c.Exporter {
	case ExporterStdout, ExporterOTLPHTTP, ExporterOTLPGRPC:
	default:
		return fmt.Errorf("unknown exporter %q", c.Exporter)
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("sample rate %v is outside [0, 1]", c.SampleRate)
	}
	return nil
}
