package channel

import "errors"

var (
	ErrMappingNotFound  = errors.New("channel mapping not found")
	ErrMappingConflict  = errors.New("instance or line already mapped")
	ErrInstanceNotFound = errors.New("instance not found")
	ErrInstanceForeign  = errors.New("instance belongs to another workspace")
)
