package core

import "errors"

var (
	// ErrPermissionDenied is returned when the platform refuses device capture.
	ErrPermissionDenied = errors.New("device permission denied")
	// ErrOverconstrained is returned when no device satisfies an exact constraint.
	ErrOverconstrained = errors.New("device constraint cannot be satisfied")
	ErrDeviceBusy      = errors.New("device operation already in progress")
	ErrCameraOff       = errors.New("camera is off")
	ErrAlreadySharing  = errors.New("screen share already active")
	ErrNotConnected    = errors.New("session not connected")
	ErrJoinInProgress  = errors.New("join already in progress")
	ErrAlreadyJoined   = errors.New("already joined")
	ErrLeftDuringJoin  = errors.New("session left while joining")
)
