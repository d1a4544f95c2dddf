package services

import "errors"

// ErrSessionNotFound signals that an operation targeted a session id with
// no stored session. It is the only domain error the session service
// raises; check with errors.Is. Everything else is a store failure.
var ErrSessionNotFound = errors.New("session not found")
