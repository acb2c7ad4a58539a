package common

import "errors"

// ErrInvalidToken marks a token that cannot be decoded.
var ErrInvalidToken = errors.New("invalid token")
