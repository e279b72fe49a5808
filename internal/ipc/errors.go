package ipc

import (
	"errors"
	"fmt"
	"net/rpc"
	"strings"

	"subburn/internal/services"
)

var kindMarkers = map[string]error{
	services.KindNotFound:                services.ErrNotFound,
	services.KindAlreadyExists:           services.ErrAlreadyExists,
	services.KindCollaboratorUnavailable: services.ErrCollaboratorUnavailable,
	services.KindCollaboratorFailed:      services.ErrCollaboratorFailed,
	services.KindValidation:              services.ErrValidation,
	services.KindCanceled:                services.ErrCanceled,
}

// encodeError flattens err into "[kind] message" so the kind survives
// net/rpc, which only transports strings.
func encodeError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("[%s] %s", services.Kind(err), services.Message(err))
}

// decodeError restores the sentinel marker from a server error. Transport
// failures are reported as the daemon being unavailable.
func decodeError(err error) error {
	if err == nil {
		return nil
	}
	var serverErr rpc.ServerError
	if !errors.As(err, &serverErr) {
		if errors.Is(err, rpc.ErrShutdown) {
			return services.Wrap(services.ErrCollaboratorUnavailable, "", "ipc", "daemon connection closed", err)
		}
		return err
	}
	msg := string(serverErr)
	if rest, ok := strings.CutPrefix(msg, "["); ok {
		if kind, message, ok := strings.Cut(rest, "] "); ok {
			if marker, known := kindMarkers[kind]; known {
				return services.Wrap(marker, "", "", message, nil)
			}
			return errors.New(message)
		}
	}
	return errors.New(msg)
}
