package updater

import (
	"log/slog"
	"time"

	"github.com/starforge-mobile/datasync/dataset"
)

// Level classifies a pipeline event.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
	LevelSuccess Level = "success"
)

// Event is one entry of the pipeline's structured event stream — its public
// observability contract. Progress, when set, is a fraction in [0,1].
type Event struct {
	RunID    string               `json:"run_id"`
	Artifact dataset.ArtifactKind `json:"artifact,omitempty"`
	Level    Level                `json:"level"`
	Message  string               `json:"message"`
	Progress *float64             `json:"progress,omitempty"`
	Time     time.Time            `json:"time"`
}

// Sink consumes pipeline events. Sinks must not block.
type Sink func(Event)

// emitter fans events out to the configured sink and mirrors them to slog.
type emitter struct {
	runID string
	sink  Sink
}

func (e *emitter) emit(level Level, artifact dataset.ArtifactKind, message string, progress *float64) {
	ev := Event{
		RunID:    e.runID,
		Artifact: artifact,
		Level:    level,
		Message:  message,
		Progress: progress,
		Time:     time.Now(),
	}
	switch level {
	case LevelError:
		slog.Error(message, "run", e.runID, "artifact", artifact)
	case LevelWarning:
		slog.Warn(message, "run", e.runID, "artifact", artifact)
	default:
		slog.Info(message, "run", e.runID, "artifact", artifact)
	}
	if e.sink != nil {
		e.sink(ev)
	}
}

func (e *emitter) info(artifact dataset.ArtifactKind, message string) {
	e.emit(LevelInfo, artifact, message, nil)
}

func (e *emitter) progress(artifact dataset.ArtifactKind, message string, fraction float64) {
	f := fraction
	ev := Event{
		RunID:    e.runID,
		Artifact: artifact,
		Level:    LevelInfo,
		Message:  message,
		Progress: &f,
		Time:     time.Now(),
	}
	if e.sink != nil {
		e.sink(ev)
	}
}

func (e *emitter) errorf(artifact dataset.ArtifactKind, message string) {
	e.emit(LevelError, artifact, message, nil)
}

func (e *emitter) success(artifact dataset.ArtifactKind, message string) {
	e.emit(LevelSuccess, artifact, message, nil)
}
