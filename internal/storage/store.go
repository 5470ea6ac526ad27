package storage

import (
	"context"

	"rulevo/internal/model"
)

// Store persists runs and their per-generation outputs. Getters report
// absence with ok=false rather than an error.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	ListRuns(ctx context.Context) ([]model.RunRecord, error)
	SaveFitnessHistory(ctx context.Context, runID string, history []float64) error
	GetFitnessHistory(ctx context.Context, runID string) ([]float64, bool, error)
	SaveGenerationDiagnostics(ctx context.Context, runID string, diagnostics []model.GenerationDiagnostics) error
	GetGenerationDiagnostics(ctx context.Context, runID string) ([]model.GenerationDiagnostics, bool, error)
	SaveTopIndividuals(ctx context.Context, runID string, top []model.IndividualRecord) error
	GetTopIndividuals(ctx context.Context, runID string) ([]model.IndividualRecord, bool, error)
}
