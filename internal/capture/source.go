package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// MaxFrameSize bounds the bytes read from any source.
const MaxFrameSize = 16 << 20

var (
	// ErrEmptyFrame is returned when a source yields no data.
	ErrEmptyFrame = errors.New("empty frame")
	// ErrFrameTooLarge is returned when a source yields more than MaxFrameSize bytes.
	ErrFrameTooLarge = errors.New("frame too large")
	// errUnexpectedStatus is returned for non-200 snapshot responses.
	errUnexpectedStatus = errors.New("unexpected snapshot status")
)

// Frame is one captured still image.
type Frame struct {
	// Data holds the encoded image bytes.
	Data []byte
	// Source names where the frame came from.
	Source string
	// CapturedAt is when the frame was taken.
	CapturedAt time.Time
}

// Source yields frames on demand.
type Source interface {
	// Name labels frames from this source.
	Name() string
	// Capture returns the current frame.
	Capture(ctx context.Context) (*Frame, error)
}

// FileSource reads the same image file on every capture.
type FileSource struct {
	// path is the image file location.
	path string
}

// NewFileSource creates a source for the image at path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: filepath.Clean(path)}
}

// Name returns "file:<base name>".
func (s *FileSource) Name() string {
	return "file:" + filepath.Base(s.path)
}

// Capture reads the file.
func (s *FileSource) Capture(_ context.Context) (*Frame, error) {
	file, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer file.Close()

	data, err := readFrame(file)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}

	return &Frame{Data: data, Source: s.Name(), CapturedAt: time.Now()}, nil
}

// SnapshotSource fetches a still image over HTTP.
type SnapshotSource struct {
	// url is the snapshot endpoint.
	url string
	// client performs the requests.
	client *http.Client
}

// NewSnapshotSource creates a source for a camera snapshot URL.
// A nil client selects http.DefaultClient.
func NewSnapshotSource(url string, client *http.Client) *SnapshotSource {
	if client == nil {
		client = http.DefaultClient
	}

	return &SnapshotSource{url: url, client: client}
}

// Name returns "camera".
func (s *SnapshotSource) Name() string {
	return "camera"
}

// Capture performs a GET on the snapshot URL.
func (s *SnapshotSource) Capture(ctx context.Context) (*Frame, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build snapshot request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s", errUnexpectedStatus, resp.Status)
	}

	data, err := readFrame(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	return &Frame{Data: data, Source: s.Name(), CapturedAt: time.Now()}, nil
}

func readFrame(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxFrameSize+1))
	if err != nil {
		return nil, err
	}

	switch {
	case len(data) == 0:
		return nil, ErrEmptyFrame
	case len(data) > MaxFrameSize:
		return nil, ErrFrameTooLarge
	}

	return data, nil
}
