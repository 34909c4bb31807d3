package minnow

import "errors"

// Common errors used throughout the minnow package
var (
	// Parse errors

	// ErrUnsupportedExpr is returned when a policy expression carries a tag the model does not know.
	ErrUnsupportedExpr = errors.New("unsupported expression kind")
	// ErrUnsupportedStmt is returned when a policy statement carries a tag the model does not know.
	ErrUnsupportedStmt = errors.New("unsupported statement kind")
	// ErrMissingField indicates a required field was absent from a tagged JSON node.
	ErrMissingField = errors.New("required field missing from node")
	// ErrMalformedDocument indicates the raw service document could not be decoded at all.
	ErrMalformedDocument = errors.New("malformed service document")
	// ErrUnknownDisposition indicates a Return statement named a disposition outside accept/reject/pass.
	ErrUnknownDisposition = errors.New("unknown disposition")

	// Service errors

	// ErrServiceUnavailable is returned when the analysis service cannot be reached or times out.
	ErrServiceUnavailable = errors.New("analysis service unavailable")
	// ErrServiceStatus indicates the analysis service answered with a non-success status code.
	ErrServiceStatus = errors.New("analysis service returned error status")

	// Interpreter errors

	// ErrUndefinedAttribute is returned when evaluation references an attribute the route record does not define.
	ErrUndefinedAttribute = errors.New("route attribute not defined in record")
	// ErrNotEvaluable indicates an expression kind reached the interpreter that it cannot evaluate.
	ErrNotEvaluable = errors.New("expression cannot be evaluated")
	// ErrPolicyNotFound indicates a policy name was referenced but never declared.
	ErrPolicyNotFound = errors.New("policy not found")

	// Query errors

	// ErrCycleBound is returned when traversal exceeds the hop bound without reaching a residual fixed point.
	ErrCycleBound = errors.New("traversal exceeded hop bound without converging")
	// ErrNodeNotFound indicates a query named a node absent from the topology.
	ErrNodeNotFound = errors.New("node not found in topology")
	// ErrUnsupportedQueryKind indicates a query kind outside the supported set.
	ErrUnsupportedQueryKind = errors.New("unsupported query kind")

	// Configuration errors

	// ErrConfigValidation is returned when configuration validation fails.
	ErrConfigValidation = errors.New("configuration validation failed")
)
