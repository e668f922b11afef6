package domain

import "errors"

var (
	ErrUnknownQuality     = errors.New("unknown quality key")
	ErrNotAuthorized      = errors.New("identity role does not permit publishing")
	ErrDeviceAccessDenied = errors.New("capture device access denied")
	ErrBackendCallFailed  = errors.New("backend call failed")
	ErrNegotiationFailed  = errors.New("viewer negotiation failed")
	ErrViewerNotFound     = errors.New("viewer not found")
	ErrViewerExists       = errors.New("viewer already admitted")
	ErrNoActiveSession    = errors.New("no active session")
	ErrSessionAlreadyLive = errors.New("a session is already active")
)
