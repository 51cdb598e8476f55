package engine

import (
	"errors"
	"fmt"
)

// Code classifies an engine error.
type Code string

const (
	CodeInvalidMove    Code = "INVALID_MOVE"
	CodePlayerNotFound Code = "PLAYER_NOT_FOUND"
	CodeTargetNotFound Code = "TARGET_NOT_FOUND"
	CodeUnknownAction  Code = "UNKNOWN_ACTION"
	CodeBadRequest     Code = "BAD_REQUEST"
	CodeNotStarted     Code = "GAME_NOT_STARTED"
	CodeNotYourTurn    Code = "NOT_YOUR_TURN"
)

// Error is a domain error. Two errors match under errors.Is when their codes
// are equal, so callers test against the Err* sentinels.
type Error struct {
	Code     Code
	Message  string
	Metadata map[string]string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Message
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrInvalidMove    = &Error{Code: CodeInvalidMove}
	ErrPlayerNotFound = &Error{Code: CodePlayerNotFound}
	ErrTargetNotFound = &Error{Code: CodeTargetNotFound}
	ErrUnknownAction  = &Error{Code: CodeUnknownAction}
	ErrBadRequest     = &Error{Code: CodeBadRequest}
	ErrNotStarted     = &Error{Code: CodeNotStarted}
	ErrNotYourTurn    = &Error{Code: CodeNotYourTurn}
)

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func invalid(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidMove, Message: fmt.Sprintf(format, args...)}
}

func playerNotFound(id string) *Error {
	return &Error{
		Code:     CodePlayerNotFound,
		Message:  fmt.Sprintf("no player %q", id),
		Metadata: map[string]string{"player_id": id},
	}
}

func targetNotFound(id string) *Error {
	return &Error{
		Code:     CodeTargetNotFound,
		Message:  fmt.Sprintf("no seller %q", id),
		Metadata: map[string]string{"target_id": id},
	}
}
