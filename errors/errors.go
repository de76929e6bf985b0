package errors

import "fmt"

var (
	ErrWorkerPanic         = fmt.Errorf("worker panic")
	ErrEmptyContent        = fmt.Errorf("message content is empty")
	ErrUnknownConversation = fmt.Errorf("conversation does not exist")
	ErrUnknownMessage      = fmt.Errorf("message does not exist")
	ErrMissingConversation = fmt.Errorf("message has no conversation reference")
	ErrInvalidPayload      = fmt.Errorf("invalid event payload")
	ErrConnectionClosed    = fmt.Errorf("connection already closed")
	ErrNotAMember          = fmt.Errorf("user is not a member of the conversation")
	ErrEmptyWords          = fmt.Errorf("no words have been found")
	ErrOnlyCensoredFiles   = fmt.Errorf("censored directory contains directories")
)
