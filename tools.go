//go:build tools

// Package huddle pins tool dependencies run through go generate.
package huddle

import (
	_ "go.uber.org/mock/mockgen"
)
