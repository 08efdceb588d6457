package relay

import "errors"

var (
	ErrEmptyIdentity      = errors.New("username is required")
	ErrConversationFull   = errors.New("conversation already has two participants")
	ErrNotLoggedIn        = errors.New("connection has no logged-in identity")
	ErrEmptyBody          = errors.New("message body is empty")
	ErrDuplicateMessageID = errors.New("message id already in use")
)
