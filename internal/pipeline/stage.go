package pipeline

// failureKind classifies a stage failure and selects the prefix of the
// persisted error detail.
type failureKind int

const (
	failureNone failureKind = iota
	failureExtraction
	failureAnalysis
	failureUnexpected
)

func (k failureKind) prefix() string {
	switch k {
	case failureExtraction:
		return "Document parsing failed: "
	case failureAnalysis:
		return "Analysis failed: "
	default:
		return "Unexpected error: "
	}
}

func (k failureKind) String() string {
	switch k {
	case failureNone:
		return "none"
	case failureExtraction:
		return "extraction"
	case failureAnalysis:
		return "analysis"
	default:
		return "unexpected"
	}
}

// stageResult is the outcome of one pipeline stage: a value, or a failure
// with its kind.
type stageResult[T any] struct {
	value T
	kind  failureKind
	err   error
}

func succeeded[T any](v T) stageResult[T] {
	return stageResult[T]{value: v}
}

func failed[T any](kind failureKind, err error) stageResult[T] {
	return stageResult[T]{kind: kind, err: err}
}

func (r stageResult[T]) ok() bool { return r.err == nil }
