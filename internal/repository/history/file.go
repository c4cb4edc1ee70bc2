package history

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/sleepwatch/internal/config"
	"github.com/oshokin/sleepwatch/internal/domain/detection"
)

// Repository defines persistence operations for the detection history.
type Repository interface {
	Load(ctx context.Context) ([]detection.Result, error)
	Save(ctx context.Context, results []detection.Result) error
}

// FileRepository persists detection results to a JSON file on disk.
// The document is a protobuf Struct encoded with protojson, the same shape
// the control API returns for history.
type FileRepository struct {
	// path is the filesystem location of the JSON history file.
	path string
	// mu protects concurrent access to the history file.
	mu sync.Mutex
}

const (
	// resultsKey holds the result list inside the document.
	resultsKey = "results"

	fieldTimestamp  = "timestamp"
	fieldStatus     = "status"
	fieldConfidence = "confidence"
	fieldDetails    = "details"
	fieldSource     = "source"
)

var (
	// ErrNotFound is returned when the history file does not exist yet.
	ErrNotFound = errors.New("history not found")

	// errMalformedResult is returned for entries that are not objects.
	errMalformedResult = errors.New("malformed result entry")
)

// NewFileRepository creates a repository that reads/writes JSON at the provided path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Load reads the history from disk, newest first.
func (r *FileRepository) Load(_ context.Context) ([]detection.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("read history file: %w", err)
	}

	var document structpb.Struct
	if err = protojson.Unmarshal(contents, &document); err != nil {
		return nil, fmt.Errorf("decode history file: %w", err)
	}

	results, err := FromList(document.GetFields()[resultsKey].GetListValue())
	if err != nil {
		return nil, fmt.Errorf("decode history file: %w", err)
	}

	return results, nil
}

// Save writes the history to disk using JSON representation.
func (r *FileRepository) Save(_ context.Context, results []detection.Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	document := &structpb.Struct{
		Fields: map[string]*structpb.Value{
			resultsKey: structpb.NewListValue(ToList(results)),
		},
	}

	marshalOptions := protojson.MarshalOptions{
		Multiline: true,
	}

	data, err := marshalOptions.Marshal(document)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}

	if err = os.WriteFile(r.path, data, config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write history file: %w", err)
	}

	return nil
}

// ToStruct converts a detection result into a protobuf Struct.
func ToStruct(result *detection.Result) *structpb.Struct {
	fields := map[string]*structpb.Value{
		fieldStatus:     structpb.NewStringValue(string(result.Status)),
		fieldConfidence: structpb.NewStringValue(string(result.Confidence)),
		fieldDetails:    structpb.NewStringValue(result.Details),
	}

	if !result.Timestamp.IsZero() {
		fields[fieldTimestamp] = structpb.NewStringValue(result.Timestamp.UTC().Format(time.RFC3339Nano))
	}

	if result.Source != "" {
		fields[fieldSource] = structpb.NewStringValue(result.Source)
	}

	return &structpb.Struct{Fields: fields}
}

// ToList converts results into a protobuf ListValue preserving order.
func ToList(results []detection.Result) *structpb.ListValue {
	values := make([]*structpb.Value, 0, len(results))
	for i := range results {
		values = append(values, structpb.NewStructValue(ToStruct(&results[i])))
	}

	return &structpb.ListValue{Values: values}
}

// FromList converts a protobuf ListValue back into results.
// A nil list yields no results.
func FromList(list *structpb.ListValue) ([]detection.Result, error) {
	results := make([]detection.Result, 0, len(list.GetValues()))

	for i, value := range list.GetValues() {
		entry := value.GetStructValue()
		if entry == nil {
			return nil, fmt.Errorf("entry %d: %w", i, errMalformedResult)
		}

		result, err := fromStruct(entry)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}

		results = append(results, result)
	}

	return results, nil
}

// fromStruct converts a protobuf Struct into a detection result.
func fromStruct(entry *structpb.Struct) (detection.Result, error) {
	fields := entry.GetFields()

	status, err := detection.ParseStatus(fields[fieldStatus].GetStringValue())
	if err != nil {
		return detection.Result{}, err
	}

	confidence, err := detection.ParseConfidence(fields[fieldConfidence].GetStringValue())
	if err != nil {
		return detection.Result{}, err
	}

	result := detection.Result{
		Status:     status,
		Confidence: confidence,
		Details:    fields[fieldDetails].GetStringValue(),
		Source:     fields[fieldSource].GetStringValue(),
	}

	if raw := fields[fieldTimestamp].GetStringValue(); raw != "" {
		if result.Timestamp, err = time.Parse(time.RFC3339Nano, raw); err != nil {
			return detection.Result{}, fmt.Errorf("parse timestamp: %w", err)
		}
	}

	return result, nil
}
