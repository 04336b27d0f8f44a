package api

import "errors"

// ErrRefreshFailed is the generic reason for a failed session refresh.
var ErrRefreshFailed = errors.New("session refresh failed")
