package model

import "context"

// Mirror receives a copy of every published output.
type Mirror interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
}
