package errs

// Error is a comparable constant error.
type Error string

func (e Error) Error() string { return string(e) }

const (
	ErrAccessDenied   = Error("not a thread participant")
	ErrSelfThread     = Error("cannot start a thread with yourself")
	ErrEmptyMessage   = Error("message content is empty")
	ErrThreadNotFound = Error("thread not found")
	ErrUserNotFound   = Error("user not found")
	ErrUnauthorized   = Error("unauthorized")
)
