package browser

import "errors"

var (
	ErrLaunchFailed   = errors.New("chrome launch failed")
	ErrNavigateFailed = errors.New("navigation failed")
	ErrTabClosed      = errors.New("tab is closed")
	// ErrStringify is returned by GlobalState when the page cannot serialize the value
	ErrStringify = errors.New("state could not be serialized")
)
