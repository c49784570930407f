// Package handlers implements the chat HTTP endpoints.
package handlers

import (
	"greenstorm/pkg/assistant"
	"greenstorm/pkg/auth"
	"greenstorm/pkg/stream"
)

// Deps carries the shared services handlers need.
type Deps struct {
	Client      *assistant.Client
	Dispatcher  *stream.Dispatcher
	AssistantID string
	Sessions    *auth.Sessions

	flights flightTable
}
