// Package genimage invokes the external image-composition API. The client
// performs no retries; retry policy belongs to the caller.
package genimage

import (
	"context"
	"fmt"
)

// Request carries one generation cycle's inputs. Face is required.
// Color=="" means the user explicitly chose to keep the original color,
// which is distinct from never reaching the color step at all.
type Request struct {
	Face      []byte
	Reference []byte
	Style     string
	Color     string
}

type Generator interface {
	Generate(ctx context.Context, req Request) ([]byte, error)
}

// GenerationError is returned when the API call fails or the response
// contains no extractable image payload.
type GenerationError struct {
	Reason string
	Err    error
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("generation failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("generation failed: %s", e.Reason)
}

func (e *GenerationError) Unwrap() error { return e.Err }
