package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind identifies the failure category of an ingestion error.
type ErrorKind string

const (
	// ErrKindConfiguration indicates invalid or unloadable ingestion configuration.
	ErrKindConfiguration ErrorKind = "configuration"

	// ErrKindCircularDependency indicates a dependency cycle among the
	// configured entities. No partial ordering is produced.
	ErrKindCircularDependency ErrorKind = "circular_dependency"

	// ErrKindDependencyValidation indicates an entity whose declared
	// dependency does not exist in the catalog. Always fatal for the
	// entity that declared it.
	ErrKindDependencyValidation ErrorKind = "dependency_validation"

	// ErrKindEntityValidation indicates an entity definition that failed
	// handler validation before any catalog call was made.
	ErrKindEntityValidation ErrorKind = "entity_validation"

	// ErrKindEntityProcessing wraps any other failure that occurred while
	// processing a single entity, including catalog API errors.
	ErrKindEntityProcessing ErrorKind = "entity_processing"

	// ErrKindPolicyViolation indicates the entity batch was denied by an
	// enforcing policy before execution started.
	ErrKindPolicyViolation ErrorKind = "policy_violation"
)

// ErrorClass classifies an error for retry logic.
type ErrorClass string

const (
	// ErrorClassTransient indicates a temporary failure that may succeed on
	// retry. Examples: network timeouts, 5xx responses, rate limiting.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassPermanent indicates a non-recoverable error.
	// Examples: invalid configuration, validation failures, 4xx responses.
	ErrorClassPermanent ErrorClass = "permanent"
)

// IngestError is a classified ingestion failure with entity context.
// All errors produced by the engine are of this type so callers can
// switch on Kind rather than matching message strings.
type IngestError struct {
	// Kind is the failure category.
	Kind ErrorKind `json:"kind"`

	// Class is the error classification for retry logic.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// EntityType is the type of the entity being processed, if applicable.
	EntityType string `json:"entity_type,omitempty"`

	// EntityName is the name or FQN of the entity being processed, if applicable.
	EntityName string `json:"entity_name,omitempty"`

	// MissingDependency is the FQN of the absent dependency for
	// dependency validation failures.
	MissingDependency string `json:"missing_dependency,omitempty"`

	// Remaining lists the entity identifiers left unordered when a
	// dependency cycle was detected.
	Remaining []string `json:"remaining,omitempty"`

	// Err is the underlying error, if any.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *IngestError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Kind, e.Message)
	if e.EntityType != "" && e.EntityName != "" {
		fmt.Fprintf(&b, " (entity=%s:%s)", e.EntityType, e.EntityName)
	}
	if len(e.Remaining) > 0 {
		fmt.Fprintf(&b, " (remaining=%s)", strings.Join(e.Remaining, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %s", e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error for error chain inspection.
func (e *IngestError) Unwrap() error {
	return e.Err
}

// Is implements error equality for errors.Is. Two ingestion errors match
// when they share the same kind.
func (e *IngestError) Is(target error) bool {
	t, ok := target.(*IngestError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// WithEntity attaches entity context to the error.
func (e *IngestError) WithEntity(entityType, entityName string) *IngestError {
	e.EntityType = entityType
	e.EntityName = entityName
	return e
}

// NewConfigurationError creates a permanent configuration error.
func NewConfigurationError(message string, err error) *IngestError {
	return &IngestError{
		Kind:    ErrKindConfiguration,
		Class:   ErrorClassPermanent,
		Message: message,
		Err:     err,
	}
}

// NewCircularDependencyError creates a permanent cycle error naming the
// entity identifiers that could not be ordered.
func NewCircularDependencyError(remaining []string) *IngestError {
	return &IngestError{
		Kind:      ErrKindCircularDependency,
		Class:     ErrorClassPermanent,
		Message:   "circular dependency detected among entities",
		Remaining: remaining,
	}
}

// NewDependencyValidationError creates a permanent error for an entity
// whose declared dependency is absent from the catalog.
func NewDependencyValidationError(entityType, entityName, missingFqn string) *IngestError {
	return &IngestError{
		Kind:              ErrKindDependencyValidation,
		Class:             ErrorClassPermanent,
		Message:           fmt.Sprintf("Missing dependency: %s", missingFqn),
		EntityType:        entityType,
		EntityName:        entityName,
		MissingDependency: missingFqn,
	}
}

// NewEntityValidationError creates a permanent error for an entity
// definition rejected by its handler.
func NewEntityValidationError(entityType, entityName, message string) *IngestError {
	return &IngestError{
		Kind:       ErrKindEntityValidation,
		Class:      ErrorClassPermanent,
		Message:    message,
		EntityType: entityType,
		EntityName: entityName,
	}
}

// NewPolicyViolationError creates a permanent error for a batch denied
// by enforcing policies.
func NewPolicyViolationError(violations int) *IngestError {
	return &IngestError{
		Kind:    ErrKindPolicyViolation,
		Class:   ErrorClassPermanent,
		Message: fmt.Sprintf("policy evaluation denied the run with %d %s", violations, plural(violations, "violation", "violations")),
	}
}

// NewEntityProcessingError wraps an arbitrary failure that occurred while
// processing an entity. The class is inherited from the wrapped error when
// it is itself classified, otherwise the supplied class is used.
func NewEntityProcessingError(message string, class ErrorClass, err error) *IngestError {
	var inner *IngestError
	if errors.As(err, &inner) {
		class = inner.Class
	}
	return &IngestError{
		Kind:    ErrKindEntityProcessing,
		Class:   class,
		Message: message,
		Err:     err,
	}
}

// KindOf returns the kind of a classified error, or an empty kind for
// unclassified errors.
func KindOf(err error) ErrorKind {
	var e *IngestError
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsTransient returns true if the error is classified as transient.
func IsTransient(err error) bool {
	var e *IngestError
	if errors.As(err, &e) {
		return e.Class == ErrorClassTransient
	}
	return false
}

// IsPermanent returns true if the error is classified as permanent.
// Unclassified errors are treated as permanent.
func IsPermanent(err error) bool {
	return !IsTransient(err)
}

// IsDependencyValidation returns true for dependency validation failures.
// These are the only failures that trigger fail-fast mode.
func IsDependencyValidation(err error) bool {
	return KindOf(err) == ErrKindDependencyValidation
}
