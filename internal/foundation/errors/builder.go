package errors

import (
	"fmt"
	"strings"
)

// ErrorBuilder provides a fluent API for creating ClassifiedError instances.
type ErrorBuilder struct {
	category ErrorCategory
	severity ErrorSeverity
	retry    RetryStrategy
	message  string
	cause    error
	context  ErrorContext
}

// NewError creates a new ErrorBuilder with the specified category and message.
func NewError(category ErrorCategory, message string) *ErrorBuilder {
	return &ErrorBuilder{
		category: category,
		severity: SeverityError,
		retry:    RetryNever,
		message:  message,
		context:  make(ErrorContext),
	}
}

// WrapError creates a new ErrorBuilder that wraps an existing error.
func WrapError(err error, category ErrorCategory, message string) *ErrorBuilder {
	b := NewError(category, message)
	b.cause = err
	return b
}

// WithSeverity sets the error severity.
func (b *ErrorBuilder) WithSeverity(severity ErrorSeverity) *ErrorBuilder {
	b.severity = severity
	return b
}

// WithRetry sets the retry strategy.
func (b *ErrorBuilder) WithRetry(strategy RetryStrategy) *ErrorBuilder {
	b.retry = strategy
	return b
}

// WithContext adds a context key-value pair.
func (b *ErrorBuilder) WithContext(key string, value any) *ErrorBuilder {
	b.context = b.context.Set(key, value)
	return b
}

// WithCause attaches an underlying error.
func (b *ErrorBuilder) WithCause(err error) *ErrorBuilder {
	b.cause = err
	return b
}

// Fatal sets the severity to fatal.
func (b *ErrorBuilder) Fatal() *ErrorBuilder {
	return b.WithSeverity(SeverityFatal)
}

// Warning sets the severity to warning.
func (b *ErrorBuilder) Warning() *ErrorBuilder {
	return b.WithSeverity(SeverityWarning)
}

// UserAction sets the retry strategy to require a source fix.
func (b *ErrorBuilder) UserAction() *ErrorBuilder {
	return b.WithRetry(RetryUserAction)
}

// Retryable sets the retry strategy to backoff.
func (b *ErrorBuilder) Retryable() *ErrorBuilder {
	return b.WithRetry(RetryBackoff)
}

// Build creates the final ClassifiedError.
func (b *ErrorBuilder) Build() *ClassifiedError {
	return &ClassifiedError{
		category: b.category,
		severity: b.severity,
		retry:    b.retry,
		message:  b.message,
		cause:    b.cause,
		context:  b.context,
	}
}

// Convenience constructors for common error patterns

// ConfigError creates a configuration error.
func ConfigError(message string) *ErrorBuilder {
	return NewError(CategoryConfig, message).Fatal()
}

// ValidationError creates a validation error.
func ValidationError(message string) *ErrorBuilder {
	return NewError(CategoryValidation, message).Fatal()
}

// FileNotFound reports a referenced source file that does not exist.
func FileNotFound(path string) *ErrorBuilder {
	return NewError(CategoryNotFound, "No such file: "+path).
		UserAction().
		WithContext("path", path)
}

// MissingFragment reports an include hash that matches no element in the target.
func MissingFragment(path, fragment string) *ErrorBuilder {
	return NewError(CategoryFragment, fmt.Sprintf("No such segment '%s' in file: %s", fragment, path)).
		UserAction().
		WithContext("path", path).
		WithContext("fragment", fragment)
}

// CyclicReference reports an include chain that re-enters itself or runs too deep.
// frames holds the most recent include frames in visit order.
func CyclicReference(file string, frames []string) *ErrorBuilder {
	msg := "Cyclic reference detected.\nLast 5 files processed:\n\t" + strings.Join(frames, "\n\t")
	return NewError(CategoryCyclic, msg).
		UserAction().
		WithContext("file", file).
		WithContext("frames", frames)
}

// DuplicatePageSource aborts a site build when the same page src is declared twice.
func DuplicatePageSource(srcs []string) *ErrorBuilder {
	return NewError(CategoryDuplicatePage, "Duplicate page entries found in site config: "+strings.Join(srcs, ", ")).
		Fatal().
		UserAction().
		WithContext("pages", srcs)
}

// LayoutError creates a layout compilation error.
func LayoutError(message string) *ErrorBuilder {
	return NewError(CategoryLayout, message)
}

// NodeError wraps a failure raised while transforming a single node.
func NodeError(err error, tag string) *ErrorBuilder {
	return WrapError(err, CategoryNode, "failed to process <"+tag+">").
		Warning().
		WithContext("tag", tag)
}

// BuildError creates a build processing error.
func BuildError(message string) *ErrorBuilder {
	return NewError(CategoryBuild, message).Fatal()
}

// FileSystemError creates a filesystem error.
func FileSystemError(message string) *ErrorBuilder {
	return NewError(CategoryFileSystem, message).Retryable()
}

// RuntimeError creates a runtime error.
func RuntimeError(message string) *ErrorBuilder {
	return NewError(CategoryRuntime, message).Fatal()
}

// InternalError creates an internal error.
func InternalError(message string) *ErrorBuilder {
	return NewError(CategoryInternal, message).Fatal()
}
