//go:build !linux

package gpio

// RealInput is not available on non-Linux platforms.
type RealInput struct{}

// NewInput returns ErrNotSupported on non-Linux platforms.
func NewInput(chipName string, offset int, pull Pull) (*RealInput, error) {
	return nil, ErrNotSupported
}

// Level is not implemented on non-Linux platforms.
func (r *RealInput) Level() (Level, error) {
	return Low, ErrNotSupported
}

// Close is a no-op on non-Linux platforms.
func (r *RealInput) Close() error {
	return nil
}

// RealOutput is not available on non-Linux platforms.
type RealOutput struct{}

// NewOutput returns ErrNotSupported on non-Linux platforms.
func NewOutput(chipName string, offset int, initial Level) (*RealOutput, error) {
	return nil, ErrNotSupported
}

// Set is not implemented on non-Linux platforms.
func (o *RealOutput) Set(level Level) error {
	return ErrNotSupported
}

// Level always reports Low on non-Linux platforms.
func (o *RealOutput) Level() Level {
	return Low
}

// Close is a no-op on non-Linux platforms.
func (o *RealOutput) Close() error {
	return nil
}
