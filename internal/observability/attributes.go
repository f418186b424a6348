// Package observability provides metrics and logging utilities.
package observability

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys
const (
	attrBackend = "backend"
	attrOp      = "op"
	attrSuccess = "success"
)

func backendAttr(backend string) attribute.KeyValue {
	return attribute.String(attrBackend, backend)
}

func opAttr(op string) attribute.KeyValue {
	return attribute.String(attrOp, op)
}

func successAttr(success bool) attribute.KeyValue {
	return attribute.Bool(attrSuccess, success)
}
