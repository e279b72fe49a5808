package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound                = errors.New("not found")
	ErrAlreadyExists           = errors.New("already exists")
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
	ErrCollaboratorFailed      = errors.New("collaborator failed")
	ErrValidation              = errors.New("validation error")
	ErrCanceled                = errors.New("canceled")
)

// Kind names used in logs and IPC responses.
const (
	KindNotFound                = "not_found"
	KindAlreadyExists           = "already_exists"
	KindCollaboratorUnavailable = "collaborator_unavailable"
	KindCollaboratorFailed      = "collaborator_failed"
	KindValidation              = "validation"
	KindCanceled                = "canceled"
	KindInternal                = "internal"
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrCollaboratorFailed
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Kind classifies err against the sentinel taxonomy. Context cancellation is
// reported as canceled even when it was not wrapped with ErrCanceled.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrAlreadyExists):
		return KindAlreadyExists
	case errors.Is(err, ErrCollaboratorUnavailable):
		return KindCollaboratorUnavailable
	case errors.Is(err, ErrCollaboratorFailed):
		return KindCollaboratorFailed
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrCanceled), errors.Is(err, context.Canceled):
		return KindCanceled
	default:
		return KindInternal
	}
}

// Message returns the human readable part of err without the marker prefix.
func Message(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.TrimSpace(err.Error())
	for _, marker := range []error{
		ErrNotFound,
		ErrAlreadyExists,
		ErrCollaboratorUnavailable,
		ErrCollaboratorFailed,
		ErrValidation,
		ErrCanceled,
	} {
		prefix := marker.Error() + ": "
		if errors.Is(err, marker) && strings.HasPrefix(msg, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(msg, prefix))
		}
	}
	return msg
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
