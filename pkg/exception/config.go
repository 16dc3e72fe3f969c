package exception

import "github.com/yanun0323/errors"

var (
	ErrConfigUnsupportedFormat = errors.New("config: unsupported file format")
	ErrConfigInvalid           = errors.New("config: invalid value")
)
