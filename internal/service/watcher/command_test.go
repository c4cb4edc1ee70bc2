package watcher

import (
	"context"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/sleepwatch/internal/audio/beeper"
	"github.com/oshokin/sleepwatch/internal/audio/speaker"
	"github.com/oshokin/sleepwatch/internal/capture"
	"github.com/oshokin/sleepwatch/internal/classifier"
	"github.com/oshokin/sleepwatch/internal/config"
	"github.com/oshokin/sleepwatch/internal/repository/history"
)

// TestResolveListenAddress covers override and port extraction.
func TestResolveListenAddress(t *testing.T) {
	t.Parallel()

	addr, err := resolveListenAddress("watcher.local:7070", "")
	require.NoError(t, err)
	require.Equal(t, ":7070", addr)

	addr, err = resolveListenAddress("watcher.local:7070", "127.0.0.1:0")
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:0", addr)

	_, err = resolveListenAddress("", "")
	require.ErrorIs(t, err, ErrNoServerAddress)

	_, err = resolveListenAddress("no-port", "")
	require.Error(t, err)
}

// TestNewSource prefers a file over the camera.
func TestNewSource(t *testing.T) {
	t.Parallel()

	settings := &config.Config{Camera: config.CameraConfig{SnapshotURL: "http://camera.local/snapshot.jpg"}}

	source, err := newSource(settings, "frame.png")
	require.NoError(t, err)
	require.IsType(t, &capture.FileSource{}, source)

	source, err = newSource(settings, "")
	require.NoError(t, err)
	require.Equal(t, "camera", source.Name())

	_, err = newSource(&config.Config{}, "")
	require.ErrorIs(t, err, ErrNoSource)
}

// TestNewBackend maps configured names to backends.
func TestNewBackend(t *testing.T) {
	t.Parallel()

	require.IsType(t, &speaker.Backend{}, newBackend(config.AudioConfig{Backend: "speaker"}))
	require.IsType(t, &beeper.Backend{}, newBackend(config.AudioConfig{Backend: "beep"}))
	require.Nil(t, newBackend(config.AudioConfig{Backend: "none"}))
}

// TestApplyOverrides ensures only non-empty flags replace settings.
func TestApplyOverrides(t *testing.T) {
	t.Parallel()

	settings := &config.Config{
		ClassifierURL: "http://detector:5000",
		HistoryFile:   "history.json",
		PollInterval:  5 * time.Second,
	}

	applyOverrides(settings, &Options{
		AudioBackend: "none",
		Interval:     2 * time.Second,
	})

	require.Equal(t, "http://detector:5000", settings.ClassifierURL)
	require.Equal(t, "history.json", settings.HistoryFile)
	require.Equal(t, "none", settings.Audio.Backend)
	require.Equal(t, 2*time.Second, settings.PollInterval)
}

// TestWaitForSilence returns once the alarm is stopped.
func TestWaitForSilence(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		f := newFixture(t)
		f.classifier.push(sleeping(), nil)
		f.loop.RunOnce(ctx)

		done := make(chan struct{})

		go func() {
			defer close(done)
			waitForSilence(ctx, f.controller)
		}()

		time.Sleep(3 * time.Second)
		synctest.Wait()

		select {
		case <-done:
			t.Fatal("returned while the alarm was playing")
		default:
		}

		f.engine.Stop(ctx)
		<-done
	})
}

// TestRun_SingleShotFile classifies an uploaded file once and persists the verdict.
func TestRun_SingleShotFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	framePath := filepath.Join(dir, "frame.png")
	frame, err := os.Create(framePath)
	require.NoError(t, err)
	require.NoError(t, png.Encode(frame, image.NewRGBA(image.Rect(0, 0, 64, 48))))
	require.NoError(t, frame.Close())

	detector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req classifier.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Image == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		_ = json.NewEncoder(w).Encode(classifier.Response{Status: "awake", Confidence: "high", Details: "reading"})
	}))
	t.Cleanup(detector.Close)

	configPath := filepath.Join(dir, "settings.yaml")
	historyPath := filepath.Join(dir, "history.json")

	require.NoError(t, config.Save(configPath, &config.Config{
		ClassifierURL:  detector.URL,
		ControlAddress: "127.0.0.1:7070",
		HistoryFile:    historyPath,
		Audio:          config.AudioConfig{Backend: "none"},
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err = Run(ctx, &Options{
		ConfigPath:    configPath,
		ListenAddress: "127.0.0.1:0",
		File:          framePath,
		AllowMultiple: true,
	})
	require.NoError(t, err)

	results, err := history.NewFileRepository(historyPath).Load(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "reading", results[0].Details)
	require.Equal(t, "file:frame.png", results[0].Source)
}
