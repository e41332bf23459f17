package blockedit

import (
	"errors"
	"fmt"
)

// Error kinds. Every failure returned by this package wraps exactly one of
// them, so callers can branch with errors.Is.
var (
	ErrNotFound        = errors.New("not found")
	ErrMalformedAnchor = errors.New("malformed anchor")
	ErrAmbiguousMatch  = errors.New("ambiguous match")
	ErrIOFailure       = errors.New("i/o failure")
	ErrInvalidBlock    = errors.New("invalid block")
	ErrInvalidDocument = errors.New("invalid document")
)

// Stage identifies a step of the upsert pipeline.
type Stage int

const (
	StageLoad Stage = iota
	StageLocate
	StageRemove
	StageInsert
	StageEnsureScalar
	StageVerify
	StagePersist
	StageDone
	StageFail
)

func (s Stage) String() string {
	switch s {
	case StageLoad:
		return "load"
	case StageLocate:
		return "locate"
	case StageRemove:
		return "remove"
	case StageInsert:
		return "insert"
	case StageEnsureScalar:
		return "ensure-scalar"
	case StageVerify:
		return "verify"
	case StagePersist:
		return "persist"
	case StageDone:
		return "done"
	case StageFail:
		return "fail"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Error is returned by Editor operations. It names the stage that failed and
// the block, key or file involved.
type Error struct {
	Stage   Stage
	Subject string
	Err     error
}

func (e *Error) Error() string {
	if e.Subject == "" {
		return fmt.Sprintf("blockedit: %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("blockedit: %s %s: %v", e.Stage, e.Subject, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func stageErr(stage Stage, subject string, err error) error {
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Stage: stage, Subject: subject, Err: err}
}

func blockSubject(name string) string { return fmt.Sprintf("block %q", name) }

func keySubject(key string) string { return fmt.Sprintf("key %q", key) }
