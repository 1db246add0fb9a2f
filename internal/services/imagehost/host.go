package imagehost

import (
	"context"
	"errors"
)

var ErrNotConfigured = errors.New("image host not configured")

// Host publishes a local image and returns a URL that notification recipients can open
type Host interface {
	Name() string
	Available() bool
	Upload(ctx context.Context, imagePath string) (string, error)
}
