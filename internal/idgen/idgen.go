package idgen

import (
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// ID prefixes for different models
const (
	PrefixCommand = "cmd_"
)

// NewCommand generates a time-sortable command ID with cmd_ prefix
func NewCommand() string {
	return PrefixCommand + ulid.Make().String()
}

// New generates a generic UUID without prefix (request IDs)
func New() string {
	return uuid.New().String()
}
