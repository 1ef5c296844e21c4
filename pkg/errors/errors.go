// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
type Code string

const (
	CodeConfigLoadReadFailure      Code = "config.load.read.failure"
	CodeConfigParseInvalidFormat   Code = "config.parse.invalid_format"
	CodeConfigValidateInvalidValue Code = "config.validate.invalid_value"

	CodeEmbeddingConfigInvalid   Code = "embedding.config.invalid"
	CodeEmbeddingRequestInvalid  Code = "embedding.request.invalid"
	CodeEmbeddingResponseInvalid Code = "embedding.response.invalid"
	CodeEmbeddingUpstreamFailure Code = "embedding.upstream.failure"
	CodeEmbeddingRequestTimeout  Code = "embedding.request.timeout"

	CodeVectorConfigInvalid       Code = "vector.config.invalid"
	CodeVectorDimensionsMismatch  Code = "vector.dimensions.mismatch"
	CodeVectorUpsertInvalid       Code = "vector.upsert.invalid_input"
	CodeVectorSearchInvalid       Code = "vector.search.invalid_input"
	CodeVectorBackendFailure      Code = "vector.backend.failure"
	CodeVectorBackendTimeout      Code = "vector.backend.timeout"
	CodeVectorLifecycleClosed     Code = "vector.lifecycle.closed"
	CodeVectorLifecycleNotReady   Code = "vector.lifecycle.not_initialized"
	CodeVectorMetadataInvalid     Code = "vector.metadata.invalid_format"

	CodeSearchRequestInvalid Code = "search.request.invalid_input"

	CodeSecretInvalidInput    Code = "secret.input.invalid"
	CodeSecretNotFound        Code = "secret.get.not_found"
	CodeSecretStoreFailure    Code = "secret.store.failure"
	CodeSecretDeleteFailure   Code = "secret.delete.failure"
	CodeSecretListFailure     Code = "secret.list.failure"
	CodeSecretResolveFailure  Code = "secret.resolve.failure"

	CodeServerInternalFailure Code = "server.internal.failure"
	CodeServerConfigInvalid   Code = "server.config.invalid"
	CodeServerStartFailure    Code = "server.start.failure"
	CodeServerShutdownFailure Code = "server.shutdown.failure"
	CodeServerRateLimited     Code = "server.request.rate_limited"

	CodeCLISetupFailure Code = "cli.setup.failure"
	CodeCLIInputInvalid Code = "cli.input.invalid"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// FieldValue creates a structured error field.
func FieldValue(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

// Field is kept as the primary helper for terse callsites.
func Field(key string, value any) Attr {
	return FieldValue(key, value)
}

func FieldProvider(value string) Attr {
	return Field("provider", value)
}

func FieldBackend(value string) Attr {
	return Field("backend", value)
}

func FieldModel(value string) Attr {
	return Field("model", value)
}

func FieldStatus(value int) Attr {
	return Field("status", value)
}

func FieldBody(value string) Attr {
	return Field("body", value)
}

func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(code).With(flatten(fields)...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).Wrapf(err, format, args...)
}

// With adds structured fields to an existing error chain.
func With(err error, fields ...Attr) error {
	if err == nil {
		return nil
	}

	code := CodeOf(err)
	if code == "" {
		code = CodeServerInternalFailure
	}

	return oops.Code(code).With(flatten(fields)...).Wrap(err)
}

func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}

	if code, ok := oopsErr.Code().(Code); ok {
		return code
	}

	if code, ok := oopsErr.Code().(string); ok {
		return Code(code)
	}

	return Code(fmt.Sprintf("%v", oopsErr.Code()))
}

func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}

	return oopsErr.Context()
}

func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

func IsNotFound(err error) bool {
	return reason(CodeOf(err)) == "not_found"
}

func IsInvalidInput(err error) bool {
	r := reason(CodeOf(err))
	return r == "invalid" || r == "invalid_input" || r == "invalid_value" || r == "invalid_format"
}

// IsConfigError reports configuration problems: missing credentials,
// missing provider sub-config, or a dimension mismatch.
func IsConfigError(err error) bool {
	code := CodeOf(err)
	if code == CodeVectorDimensionsMismatch {
		return true
	}
	parts := strings.Split(string(code), ".")
	return len(parts) >= 2 && (parts[0] == "config" || parts[1] == "config")
}

// IsLifecycleError reports operations attempted on a closed or
// uninitialized backend.
func IsLifecycleError(err error) bool {
	return strings.Contains(string(CodeOf(err)), ".lifecycle.")
}

func IsRateLimited(err error) bool {
	return reason(CodeOf(err)) == "rate_limited"
}

func IsTimeout(err error) bool {
	return reason(CodeOf(err)) == "timeout"
}

func IsUpstreamFailure(err error) bool {
	code := CodeOf(err)
	return (strings.Contains(string(code), "upstream") || strings.Contains(string(code), "backend")) &&
		reason(code) == "failure"
}

func HTTPStatus(err error) int {
	switch {
	case IsNotFound(err):
		return http.StatusNotFound
	case IsConfigError(err):
		return http.StatusInternalServerError
	case IsInvalidInput(err):
		return http.StatusBadRequest
	case IsRateLimited(err):
		return http.StatusTooManyRequests
	case IsTimeout(err):
		return http.StatusGatewayTimeout
	case IsUpstreamFailure(err):
		return http.StatusBadGateway
	case IsLifecycleError(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func Join(errs ...error) error {
	return oops.Code(CodeServerInternalFailure).Wrap(stderrors.Join(errs...))
}

func flatten(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		if field.Key == "" {
			continue
		}
		pairs = append(pairs, field.Key, field.Value)
	}
	return pairs
}

func reason(code Code) string {
	if code == "" {
		return ""
	}

	raw := string(code)
	idx := strings.LastIndex(raw, ".")
	if idx == -1 || idx == len(raw)-1 {
		return raw
	}
	return raw[idx+1:]
}
