// Package errors provides classified error primitives used across the site compiler.
//
// Errors carry a category, a severity and a retry strategy so the scheduler can
// decide whether a failure aborts a build, degrades one page, or is only logged.
//
// Key features:
//   - ErrorCategory: not_found, fragment, cyclic, duplicate_page, layout, node, ...
//   - ErrorSeverity: fatal, error, warning, info
//   - ClassifiedError: structured error with category, severity, and context
//   - ErrorBuilder: fluent API for creating classified errors
//   - CLI and HTTP adapters for error presentation
//
// Example usage:
//
//	err := errors.FileNotFound(path).
//		WithContext("included_from", cwf).
//		Build()
package errors
