package importer

import (
	"testing"

	"github.com/google/uuid"

	"github.com/jsalverda/disentangle/internal/domain"
)

func TestBuildProgressPercentage(t *testing.T) {
	job := domain.ImportJob{
		ID:            uuid.New(),
		Status:        domain.ImportJobStatusProcessing,
		ProcessedRows: 30,
		TotalRows:     100,
	}
	progress := BuildProgress(job)
	if progress.Percentage != 0.3 {
		t.Fatalf("expected 0.3, got %v", progress.Percentage)
	}
}

func TestBuildProgressClampsOverrun(t *testing.T) {
	job := domain.ImportJob{
		Status:        domain.ImportJobStatusProcessing,
		ProcessedRows: 120,
		TotalRows:     100,
	}
	if got := BuildProgress(job).Percentage; got != 1 {
		t.Fatalf("expected clamp to 1, got %v", got)
	}
}

func TestBuildProgressCompletedForcesOne(t *testing.T) {
	job := domain.ImportJob{
		Status:        domain.ImportJobStatusCompleted,
		ProcessedRows: 99,
		TotalRows:     100,
	}
	if got := BuildProgress(job).Percentage; got != 1 {
		t.Fatalf("expected 1 on completed, got %v", got)
	}
}

func TestBuildProgressZeroTotal(t *testing.T) {
	job := domain.ImportJob{Status: domain.ImportJobStatusPending}
	if got := BuildProgress(job).Percentage; got != 0 {
		t.Fatalf("expected 0 for unknown total, got %v", got)
	}
}
