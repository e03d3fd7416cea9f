package watch

import "errors"

var ErrAlreadyRunning = errors.New("coordinator is already running")
