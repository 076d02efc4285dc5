package errors

import "errors"

type Category string

const (
	CategoryConfiguration    Category = "configuration"
	CategoryIntegrity        Category = "integrity"
	CategorySigning          Category = "signing"
	CategoryIdentityMismatch Category = "identity_mismatch"
	CategoryVerification     Category = "verification_failed"
	CategoryNetworkTransient Category = "network_transient"
	CategoryRateLimited      Category = "rate_limited"
	CategoryPublishConflict  Category = "publish_conflict"
	CategoryIOFailure        Category = "io_failure"
	CategoryInternalFailure  Category = "internal_failure"
)

// Context pins an error to the run that produced it so operators can
// diagnose a failure without replaying the pipeline. It never carries
// key material.
type Context struct {
	Repository string
	ReleaseTag string
	Stage      string
}

type classifiedError struct {
	category  Category
	code      string
	hint      string
	retryable bool
	context   Context
	cause     error
}

func (e *classifiedError) Error() string {
	if e.cause == nil {
		return "unknown error"
	}
	return e.cause.Error()
}

func (e *classifiedError) Unwrap() error {
	return e.cause
}

func Wrap(cause error, category Category, code, hint string, retryable bool) error {
	if cause == nil {
		return nil
	}
	return &classifiedError{
		category:  category,
		code:      code,
		hint:      hint,
		retryable: retryable,
		cause:     cause,
	}
}

// WithContext attaches run context to an already classified error. An
// unclassified cause is wrapped as an internal failure first so the
// context is never silently dropped.
func WithContext(err error, runContext Context) error {
	if err == nil {
		return nil
	}
	var classified *classifiedError
	if !errors.As(err, &classified) {
		return &classifiedError{
			category: CategoryInternalFailure,
			context:  runContext,
			cause:    err,
		}
	}
	return &classifiedError{
		category:  classified.category,
		code:      classified.code,
		hint:      classified.hint,
		retryable: classified.retryable,
		context:   runContext,
		cause:     err,
	}
}

func CategoryOf(err error) Category {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.category
	}
	return ""
}

func CodeOf(err error) string {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.code
	}
	return ""
}

func HintOf(err error) string {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.hint
	}
	return ""
}

func RetryableOf(err error) bool {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.retryable
	}
	return false
}

func ContextOf(err error) Context {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.context
	}
	return Context{}
}
