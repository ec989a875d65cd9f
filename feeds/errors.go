package feeds

import (
	"errors"
	"fmt"
)

// ErrNotFound is the kind shared by every lookup failure of the feed queue
var ErrNotFound = errors.New("not found")

var (
	// ErrNoFeed is returned when the owner has no feed record
	ErrNoFeed = fmt.Errorf("%w: feed does not exist", ErrNotFound)

	// ErrOutOfContent is returned by GetNext when nothing is available
	ErrOutOfContent = fmt.Errorf("%w: out of content", ErrNotFound)

	// ErrFeedExists is returned when creating a second feed for an owner
	ErrFeedExists = errors.New("feed already exists")

	// ErrInvalidOwner is returned for a blank owner id
	ErrInvalidOwner = errors.New("owner must not be empty")
)
