package detector

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/oshokin/sleepwatch/internal/classifier"
	"github.com/oshokin/sleepwatch/internal/domain/detection"
	"github.com/oshokin/sleepwatch/internal/logger"
)

const (
	// HealthPath is the liveness endpoint.
	HealthPath = "/healthz"

	// minImagePayload is the shortest base64 payload accepted, data URI prefix excluded.
	minImagePayload = 100

	// maxRequestSize bounds the request body.
	maxRequestSize = 32 << 20

	missingImageDetails = "No image data provided. Send JSON with 'image' key containing base64 data."
	smallImageDetails   = "Image data appears too small or invalid."
)

// Detector classifies one image.
type Detector interface {
	Detect(ctx context.Context, image string) *classifier.Response
}

// validate checks incoming requests.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Panics only on programmer error: the tag name is static.
	if err := v.RegisterValidation("imagedata", validateImageData); err != nil {
		panic(err)
	}

	return v
}

// validateImageData rejects payloads too short to be an image.
func validateImageData(fl validator.FieldLevel) bool {
	payload := fl.Field().String()
	if i := strings.LastIndex(payload, ","); i >= 0 {
		payload = payload[i+1:]
	}

	return len(payload) >= minImagePayload
}

// detectRequest is the validated body of POST /detect.
type detectRequest struct {
	// Image is base64 image data, optionally data-URI prefixed.
	Image string `json:"image" validate:"required,imagedata"`
}

// NewHandler builds the detector's HTTP routes.
func NewHandler(ctx context.Context, detector Detector) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST "+classifier.DetectPath, func(w http.ResponseWriter, r *http.Request) {
		handleDetect(ctx, detector, w, r)
	})
	mux.HandleFunc("OPTIONS "+classifier.DetectPath, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET "+HealthPath, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return withCORS(mux)
}

func handleDetect(ctx context.Context, detector Detector, w http.ResponseWriter, r *http.Request) {
	var req detectRequest

	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestSize))
	if err := decoder.Decode(&req); err != nil {
		logger.DebugKV(ctx, "Rejected detect request", "error", err)
		writeFailure(w, missingImageDetails)

		return
	}

	if err := validate.Struct(&req); err != nil {
		writeFailure(w, validationDetails(err))

		return
	}

	result := detector.Detect(r.Context(), req.Image)

	logger.InfoKV(ctx, "Image analysed",
		"status", result.Status,
		"confidence", result.Confidence,
		"remote_addr", r.RemoteAddr,
	)

	writeJSON(w, http.StatusOK, result)
}

// validationDetails maps validator failures to user-facing details.
func validationDetails(err error) string {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
		if validationErrors[0].Tag() == "imagedata" {
			return smallImageDetails
		}
	}

	return missingImageDetails
}

func writeFailure(w http.ResponseWriter, details string) {
	writeJSON(w, http.StatusBadRequest, &classifier.Response{
		Status:     string(detection.StatusError),
		Confidence: string(detection.ConfidenceNone),
		Details:    details,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// withCORS lets browser pages on other origins call the detector.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		next.ServeHTTP(w, r)
	})
}
