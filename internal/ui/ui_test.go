package ui

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestHeaderRender(t *testing.T) {
	h := NewHeader("Batch pairing", "batchpair pair", []Param{
		{Key: "Service", Value: "http://127.0.0.1:8787"},
		{Key: "Devices", Value: "3"},
	}).SetWidth(80)

	out := h.Render()
	for _, want := range []string{"BATCH PAIRING", "batchpair pair", "http://127.0.0.1:8787", "Devices:"} {
		if !strings.Contains(out, want) {
			t.Errorf("Render() missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "Service") > strings.Index(out, "Devices") {
		t.Error("params should keep their order")
	}
}

func TestResultRender(t *testing.T) {
	tests := []struct {
		name   string
		result *Result
		want   []string
		absent []string
	}{
		{
			name:   "success",
			result: NewSuccessResult("Paired 2 devices", []Param{{Key: "Session", Value: "abc"}}),
			want:   []string{"SUCCESS", "Paired 2 devices", "Session:", "abc"},
			absent: []string{"Troubleshooting"},
		},
		{
			name:   "failure",
			result: NewFailureResult("Batch pairing failed", errors.New("token rejected"), []string{"Pass a fresh --token"}),
			want:   []string{"FAILED", "Error: token rejected", "Troubleshooting:", "Pass a fresh --token"},
		},
		{
			name:   "warning",
			result: NewWarningResult("History not saved", nil).AddDetail("Path", "/tmp/x"),
			want:   []string{"WARNING", "History not saved", "/tmp/x"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := tt.result.SetWidth(90).Render()
			for _, want := range tt.want {
				if !strings.Contains(out, want) {
					t.Errorf("Render() missing %q:\n%s", want, out)
				}
			}
			for _, absent := range tt.absent {
				if strings.Contains(out, absent) {
					t.Errorf("Render() should not contain %q", absent)
				}
			}
		})
	}
}

func TestProgressUpdateStep(t *testing.T) {
	p := NewProgress("", []string{"Check", "Issue", "Wait", "Save"}).SetWidth(80)

	p.StartStep(1, "")
	if p.Current != 1 {
		t.Errorf("Current = %d, want 1", p.Current)
	}
	p.CompleteStep(1, "3 valid")
	p.UpdateStep(2, StepSkipped, "")
	if p.Percent != 0.5 {
		t.Errorf("Percent = %v, want 0.5", p.Percent)
	}

	p.FailStep(3, "timeout")
	if p.Percent != 0.5 {
		t.Errorf("a failed step should not count as done, Percent = %v", p.Percent)
	}

	// Out of range updates are ignored
	p.UpdateStep(0, StepComplete, "")
	p.UpdateStep(9, StepComplete, "")

	line := p.RenderStepLine(p.Steps[0])
	if !strings.Contains(line, "[1/4]") || !strings.Contains(line, StepMarkerComplete) || !strings.Contains(line, "(3 valid)") {
		t.Errorf("RenderStepLine() = %q", line)
	}
	if out := p.Render(); !strings.Contains(out, "[2/4]") || !strings.Contains(out, "50%") {
		t.Errorf("Render() = %q", out)
	}
}

func TestRunnerRun(t *testing.T) {
	var buf bytes.Buffer
	r := NewRunner(RunnerConfig{
		Title:        "Batch pairing",
		Command:      "batchpair pair",
		StepNames:    []string{"Check serial numbers", "Issue pin codes"},
		SuccessTitle: "Paired 2 devices",
		Output:       &buf,
		Width:        80,
	})

	err := r.Run(func(onStep StepCallback) ([]Param, error) {
		onStep(1, StepRunning, "")
		onStep(1, StepComplete, "2 valid")
		onStep(2, StepComplete, "")
		onStep(7, StepComplete, "")
		return []Param{{Key: "Session", Value: "abc"}}, nil
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{"BATCH PAIRING", "Check serial numbers", "(2 valid)", "Paired 2 devices", "Duration:"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if r.Progress().Percent != 1 {
		t.Errorf("Percent = %v, want 1", r.Progress().Percent)
	}
}

func TestRunnerRunFailure(t *testing.T) {
	var buf bytes.Buffer
	wantErr := errors.New("pairing failed for SN-000002")
	r := NewRunner(RunnerConfig{
		Title:     "Batch pairing",
		StepNames: []string{"Wait for pin code confirmation"},
		Troubleshooting: func(err error) []string {
			return []string{"Reset the device and try again"}
		},
		Output: &buf,
		Width:  80,
	})

	err := r.Run(func(onStep StepCallback) ([]Param, error) {
		onStep(1, StepFailed, "1 failed")
		return nil, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Run() error = %v, want %v", err, wantErr)
	}

	out := buf.String()
	for _, want := range []string{"Batch pairing failed", "SN-000002", "Reset the device and try again", FailureMarker} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPleaseWait(t *testing.T) {
	out := PleaseWait("Waiting for devices", "up to 10m0s")
	if !strings.Contains(out, "Waiting for devices") || !strings.Contains(out, "(up to 10m0s)") {
		t.Errorf("PleaseWait() = %q", out)
	}
}
