package streamcapture

import (
	"io"

	"gocv.io/x/gocv"

	"detectorx-worker-go/internal/models"
)

// MockSource replays a fixed list of frames; useful for tests and dry runs
type MockSource struct {
	Frames      []gocv.Mat
	Description string
	pos         int
	closed      bool
}

func NewMockSource(description string, frames ...gocv.Mat) *MockSource {
	return &MockSource{Frames: frames, Description: description}
}

func (m *MockSource) Read(frame *gocv.Mat) error {
	if m.closed || m.pos >= len(m.Frames) {
		return io.EOF
	}
	m.Frames[m.pos].CopyTo(frame)
	m.pos++
	return nil
}

func (m *MockSource) Kind() models.SourceKind { return models.SourceKindVideo }
func (m *MockSource) Describe() string        { return m.Description }

// Position is the number of frames handed out so far
func (m *MockSource) Position() int { return m.pos }

func (m *MockSource) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	for _, f := range m.Frames {
		f.Close()
	}
	return nil
}
