package domain

import (
	"errors"
	"testing"
)

func TestIngestionJob_Lifecycle(t *testing.T) {
	job := NewIngestionJob(JobKindSource, "note:1", false)
	if job.Status != JobStatusNotStarted {
		t.Fatalf("expected not_started, got %s", job.Status)
	}
	if job.ID == "" {
		t.Error("expected id")
	}

	job.MarkProcessing()
	if job.Status != JobStatusProcessing || job.StartedAt == nil {
		t.Errorf("expected processing with start time, got %+v", job)
	}

	job.MarkCompleted(12, 2)
	res := job.Result()
	if res.Status != JobStatusCompleted || res.ProcessedCount != 12 || res.FailedEmbeddings != 2 || res.Skipped {
		t.Errorf("unexpected result %+v", res)
	}
	if !job.Status.IsTerminal() {
		t.Error("completed should be terminal")
	}
}

func TestIngestionJob_ForceRerunFromTerminal(t *testing.T) {
	job := NewIngestionJob(JobKindSource, "book:1", true)
	job.MarkProcessing()
	job.MarkFailed(4, errors.New("boom"))
	if job.Result().ErrorDetail != "boom" {
		t.Errorf("expected error detail, got %q", job.Error)
	}

	job.MarkProcessing()
	if job.Status != JobStatusProcessing {
		t.Errorf("expected processing, got %s", job.Status)
	}
	if job.Error != "" || job.ProcessedCount != 0 || job.CompletedAt != nil {
		t.Errorf("expected previous outcome cleared, got %+v", job)
	}
}

func TestIngestionJob_Skipped(t *testing.T) {
	job := NewIngestionJob(JobKindSource, "transcript:1", false)
	job.MarkProcessing()
	job.MarkSkipped(7)

	res := job.Result()
	if !res.Skipped || res.Status != JobStatusSkipped || res.ProcessedCount != 7 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestJobStatus_IsTerminal(t *testing.T) {
	if JobStatusNotStarted.IsTerminal() || JobStatusProcessing.IsTerminal() {
		t.Error("not_started and processing are not terminal")
	}
	if !JobStatusFailed.IsTerminal() || !JobStatusSkipped.IsTerminal() {
		t.Error("failed and skipped are terminal")
	}
}
