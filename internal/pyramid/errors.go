package pyramid

import "errors"

var (
	ErrInvalidConfig    = errors.New("pyramid: invalid configuration")
	ErrAlloc            = errors.New("pyramid: allocation failed")
	ErrAlreadyAllocated = errors.New("pyramid: octave already allocated")
	ErrNotAllocated     = errors.New("pyramid: octave not allocated")
	ErrInvalidState     = errors.New("pyramid: operation not valid in current state")
	ErrSizeMismatch     = errors.New("pyramid: image size does not match pyramid")
)
