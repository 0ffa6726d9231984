package domain

import "errors"

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrDeviceUnreachable = errors.New("device unreachable")
	ErrDeviceTimeout     = errors.New("device timeout")
	ErrProtocolMismatch  = errors.New("protocol mismatch")
)
