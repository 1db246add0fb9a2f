package alerting

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"
)

// ReleasePolicy bounds the retries used when deleting a transient file
type ReleasePolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

var (
	// ArtifactReleasePolicy is used for the per-dispatch annotated frame
	ArtifactReleasePolicy = ReleasePolicy{MaxAttempts: 3, Backoff: 100 * time.Millisecond}
	// UploadReleasePolicy is used for uploaded videos once their monitor ends
	UploadReleasePolicy = ReleasePolicy{MaxAttempts: 5, Backoff: 200 * time.Millisecond}
)

// ReleaseFile deletes path, retrying only while the file is busy or locked.
// A file that is already gone counts as released.
func (p ReleasePolicy) ReleaseFile(path string) error {
	return p.release(path, os.Remove)
}

func (p ReleasePolicy) release(path string, remove func(string) error) error {
	if path == "" {
		return nil
	}
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = remove(path)
		if err == nil || errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if !isTransientRemoveError(err) {
			return fmt.Errorf("remove %s: %w", path, err)
		}
		if attempt < attempts {
			log.Debug().
				Err(err).
				Str("path", path).
				Int("attempt", attempt).
				Msg("File busy, retrying delete")
			time.Sleep(p.Backoff)
		}
	}
	return fmt.Errorf("remove %s after %d attempts: %w", path, attempts, err)
}

func isTransientRemoveError(err error) bool {
	return errors.Is(err, fs.ErrPermission) ||
		errors.Is(err, syscall.EBUSY) ||
		errors.Is(err, syscall.ETXTBSY)
}

// ArtifactStore writes annotated frames to temporary JPEG files
type ArtifactStore struct {
	dir     string
	quality int
	policy  ReleasePolicy
}

// NewArtifactStore creates a store under dir; an empty dir means the OS temp directory
func NewArtifactStore(dir string, policy ReleasePolicy) *ArtifactStore {
	return &ArtifactStore{dir: dir, quality: 90, policy: policy}
}

// Persist encodes the frame as JPEG into a new temp file and returns its path
func (s *ArtifactStore) Persist(frame gocv.Mat) (string, error) {
	if frame.Empty() {
		return "", errors.New("annotated frame is empty")
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, frame, []int{gocv.IMWriteJpegQuality, s.quality})
	if err != nil {
		return "", fmt.Errorf("encode annotated frame: %w", err)
	}
	defer buf.Close()

	f, err := os.CreateTemp(s.dir, "detectorx-alert-*.jpg")
	if err != nil {
		return "", fmt.Errorf("create artifact file: %w", err)
	}
	path := f.Name()

	if _, err := f.Write(buf.GetBytes()); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write artifact file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close artifact file: %w", err)
	}
	return path, nil
}

// Release deletes a file written by Persist
func (s *ArtifactStore) Release(path string) error {
	return s.policy.ReleaseFile(path)
}
