package chat

import "errors"

var ErrEmptyHistory = errors.New("chat: empty conversation")
