package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/ehr/ertriage/internal/domain/triage"
)

func runClassify(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := rootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"classify"}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestClassify_ComplaintOnly(t *testing.T) {
	out, err := runClassify(t, "--complaint", "cardiac arrest")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(out, "ESI 1:") {
		t.Errorf("expected ESI 1, got %q", out)
	}
}

func TestClassify_Vitals(t *testing.T) {
	out, err := runClassify(t, "--complaint", "headache", "--hr", "160")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(out, "ESI 2:") {
		t.Errorf("expected ESI 2, got %q", out)
	}
}

func TestClassify_ZeroHeartRateIsMeasured(t *testing.T) {
	out, err := runClassify(t, "--complaint", "headache", "--hr", "0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(out, "ESI 2:") {
		t.Errorf("expected ESI 2 for HR 0, got %q", out)
	}
}

func TestClassify_BadBloodPressure(t *testing.T) {
	if _, err := runClassify(t, "--complaint", "headache", "--bp", "high"); err == nil {
		t.Fatal("expected error for malformed --bp")
	}
}

func TestClassify_SevereHistoryJSON(t *testing.T) {
	out, err := runClassify(t,
		"--complaint", "asthma flare",
		"--condition", "asthma:severe",
		"--condition", "hypertension",
		"--json",
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var a triage.Assessment
	if err := json.Unmarshal([]byte(out), &a); err != nil {
		t.Fatalf("invalid JSON output %q: %v", out, err)
	}
	if a.Level != triage.Level(2) {
		t.Errorf("expected level 2, got %d", a.Level)
	}
	if !a.HighRiskHistory {
		t.Error("expected high-risk history")
	}
	if len(a.History) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(a.History))
	}
	if a.History[0].Severity != "severe" || a.History[1].Severity != "" {
		t.Errorf("unexpected severities: %+v", a.History)
	}
	if len(a.RelatedHistory) != 1 || a.RelatedHistory[0].Text != "asthma" {
		t.Errorf("expected asthma as related history, got %+v", a.RelatedHistory)
	}
}

func TestParseConditions(t *testing.T) {
	got := parseConditions([]string{" copd : severe ", "", ":mild", "diabetes"})
	if len(got) != 2 {
		t.Fatalf("expected 2 conditions, got %+v", got)
	}
	if got[0].Text != "copd" || got[0].Severity != "severe" {
		t.Errorf("unexpected first condition: %+v", got[0])
	}
	if got[1].Text != "diabetes" || got[1].Severity != "" {
		t.Errorf("unexpected second condition: %+v", got[1])
	}
}
