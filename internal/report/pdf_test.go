package report

import (
	"strings"
	"testing"
	"time"
)

func TestBuildHTMLConvertsMarkdownAndMeta(t *testing.T) {
	md := "# Reconciliation Report\n\n| Metric | Count |\n|---|---|\n| Records examined | 12 |\n"
	out, err := buildHTML(md, Meta{
		Title:    "Reconciliation Report",
		RunID:    "run-42",
		Produced: time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("buildHTML: %v", err)
	}
	for _, want := range []string{
		"<title>Reconciliation Report</title>",
		"<strong>Run:</strong> run-42",
		"<h1>Reconciliation Report</h1>",
		"<table>",
		"Records examined",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("html missing %q:\n%s", want, out)
		}
	}
}

func TestBuildHTMLEscapesMeta(t *testing.T) {
	out, err := buildHTML("body", Meta{RunID: "<script>alert(1)</script>"})
	if err != nil {
		t.Fatalf("buildHTML: %v", err)
	}
	if strings.Contains(out, "<script>alert(1)</script>") {
		t.Fatal("run id not escaped")
	}
	if !strings.Contains(out, "&lt;script&gt;") {
		t.Fatalf("expected escaped run id, got:\n%s", out)
	}
}

func TestBuildHTMLDefaultsTitle(t *testing.T) {
	out, err := buildHTML("body", Meta{})
	if err != nil {
		t.Fatalf("buildHTML: %v", err)
	}
	if !strings.Contains(out, "<title>Scholar Atlas Report</title>") {
		t.Fatalf("default title missing:\n%s", out)
	}
}
