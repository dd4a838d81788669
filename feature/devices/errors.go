package devices

import "errors"

var (
	// ErrReadFailure marks an entity type that could not be loaded. The pass
	// continues and the entity type is reported incomplete.
	ErrReadFailure = errors.New("read failure")
	// ErrWriteFailure marks a single repair write that failed.
	ErrWriteFailure = errors.New("write failure")
	// ErrAmbiguousTieBreak marks a primary patient chosen by the fallback rule.
	ErrAmbiguousTieBreak = errors.New("ambiguous tie-break")
	// ErrReferentialGap marks a relationship pointing at a user or device that
	// does not exist. It is never repaired.
	ErrReferentialGap = errors.New("referential gap")
)
