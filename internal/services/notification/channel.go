package notification

import (
	"context"
	"errors"
	"os"

	"github.com/rs/zerolog/log"

	"detectorx-worker-go/internal/services/imagehost"
)

var ErrNotConfigured = errors.New("notification channel not configured")

// Notes appended when the detection frame cannot accompany the message
const (
	noteImageNotAttached = "(Warning: the detection image could not be attached.)"
	notePhotoSendFailed  = "(Warning: failed to send the detection image directly.)"
	noteHostingFailed    = "(Info: the detection image could not be uploaded for a preview link.)"
	noteImageMissing     = "(Info: the detection image is not available for this notification.)"
)

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// hostImage returns a public link for the image or "" when hosting is off or fails
func hostImage(ctx context.Context, host imagehost.Host, imagePath, channel string) string {
	if host == nil || !host.Available() {
		return ""
	}
	link, err := host.Upload(ctx, imagePath)
	if err != nil {
		log.Warn().
			Err(err).
			Str("channel", channel).
			Str("host", host.Name()).
			Msg("Image upload failed, sending without link")
		return ""
	}
	return link
}
