package streamcapture

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"

	"detectorx-worker-go/internal/models"
)

// ErrSourceOpen is returned when a source cannot be opened at all
var ErrSourceOpen = errors.New("failed to open source")

// Source yields frames in order. Read returns io.EOF once the stream is exhausted.
type Source interface {
	Read(frame *gocv.Mat) error
	Kind() models.SourceKind
	// Describe is the human-readable origin used in alert messages
	Describe() string
	Close() error
}

// Open dispatches on kind. For images and videos target is a file path and name is the
// display name (the original upload name); for cameras target is a device index or stream URL.
func Open(kind models.SourceKind, target, name string) (Source, error) {
	switch kind {
	case models.SourceKindImage:
		return OpenImage(target, name)
	case models.SourceKindVideo:
		return OpenVideo(target, name)
	case models.SourceKindCamera:
		return OpenCamera(target)
	default:
		return nil, fmt.Errorf("%w: unknown source kind %q", ErrSourceOpen, kind)
	}
}

func displayName(path, name string) string {
	if name != "" {
		return name
	}
	return filepath.Base(path)
}

// imageSource yields a single still frame
type imageSource struct {
	img      gocv.Mat
	name     string
	consumed bool
}

func OpenImage(path, name string) (Source, error) {
	img := gocv.IMRead(path, gocv.IMReadUnchanged)
	if img.Empty() {
		img.Close()
		return nil, fmt.Errorf("%w: cannot decode image %s", ErrSourceOpen, path)
	}
	return &imageSource{img: img, name: displayName(path, name)}, nil
}

// NewImageSource wraps an already decoded frame; the source takes ownership of img
func NewImageSource(img gocv.Mat, name string) Source {
	return &imageSource{img: img, name: name}
}

func (s *imageSource) Read(frame *gocv.Mat) error {
	if s.consumed {
		return io.EOF
	}
	s.consumed = true
	s.img.CopyTo(frame)
	return nil
}

func (s *imageSource) Kind() models.SourceKind { return models.SourceKindImage }
func (s *imageSource) Describe() string        { return "Image: " + s.name }
func (s *imageSource) Close() error            { return s.img.Close() }

// videoSource reads a file until the first failed read
type videoSource struct {
	cap  *gocv.VideoCapture
	name string
}

func OpenVideo(path, name string) (Source, error) {
	cap, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceOpen, path, err)
	}
	if !cap.IsOpened() {
		cap.Close()
		return nil, fmt.Errorf("%w: video capture not opened for %s", ErrSourceOpen, path)
	}

	log.Info().
		Str("path", path).
		Float64("fps", cap.Get(gocv.VideoCaptureFPS)).
		Float64("frames", cap.Get(gocv.VideoCaptureFrameCount)).
		Msg("Video opened")

	return &videoSource{cap: cap, name: displayName(path, name)}, nil
}

func (s *videoSource) Read(frame *gocv.Mat) error {
	if ok := s.cap.Read(frame); !ok || frame.Empty() {
		return io.EOF
	}
	return nil
}

func (s *videoSource) Kind() models.SourceKind { return models.SourceKindVideo }
func (s *videoSource) Describe() string        { return "File: " + s.name }
func (s *videoSource) Close() error            { return s.cap.Close() }

// cameraSource tolerates transient read failures before giving up
type cameraSource struct {
	cap                  *gocv.VideoCapture
	target               string
	maxConsecutiveErrors int
}

func OpenCamera(target string) (Source, error) {
	var (
		cap *gocv.VideoCapture
		err error
	)
	if id, convErr := strconv.Atoi(target); convErr == nil {
		cap, err = gocv.OpenVideoCapture(id)
	} else {
		cap, err = gocv.OpenVideoCaptureWithAPI(target, gocv.VideoCaptureFFmpeg)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: camera %s: %v", ErrSourceOpen, target, err)
	}
	if !cap.IsOpened() {
		cap.Close()
		return nil, fmt.Errorf("%w: camera %s not opened", ErrSourceOpen, target)
	}

	// Minimal buffer for low latency
	cap.Set(gocv.VideoCaptureBufferSize, 1)

	log.Info().
		Str("camera", target).
		Float64("width", cap.Get(gocv.VideoCaptureFrameWidth)).
		Float64("height", cap.Get(gocv.VideoCaptureFrameHeight)).
		Msg("Camera opened")

	return &cameraSource{cap: cap, target: target, maxConsecutiveErrors: 10}, nil
}

func (s *cameraSource) Read(frame *gocv.Mat) error {
	consecutiveErrors := 0
	for {
		if ok := s.cap.Read(frame); ok && !frame.Empty() {
			return nil
		}
		consecutiveErrors++
		log.Warn().
			Str("camera", s.target).
			Int("consecutive_errors", consecutiveErrors).
			Msg("Failed to read frame from camera")

		if consecutiveErrors >= s.maxConsecutiveErrors {
			return fmt.Errorf("camera %s: %d consecutive read failures: %w", s.target, consecutiveErrors, io.EOF)
		}

		// Progressive delay based on error count
		delay := time.Duration(consecutiveErrors*50) * time.Millisecond
		if delay > 2*time.Second {
			delay = 2 * time.Second
		}
		time.Sleep(delay)
	}
}

func (s *cameraSource) Kind() models.SourceKind { return models.SourceKindCamera }
func (s *cameraSource) Describe() string        { return "Camera ID: " + s.target }
func (s *cameraSource) Close() error            { return s.cap.Close() }
