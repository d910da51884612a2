package script

import "errors"

var (
	ErrDuplicateBinding  = errors.New("script: duplicate binding")
	ErrUnboundCapability = errors.New("script: unbound capability")
	ErrInvalidBinding    = errors.New("script: invalid binding")
)
