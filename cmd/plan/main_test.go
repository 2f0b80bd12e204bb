package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const cityYAML = `edges:
  - {from: A, to: B, time: 5, capacity: 2}
  - {from: B, to: A, time: 5, capacity: 2}
  - {from: A, to: C, time: 10, capacity: 3}
  - {from: C, to: A, time: 10, capacity: 3}
  - {from: B, to: D, time: 15, capacity: 2}
  - {from: D, to: B, time: 15, capacity: 2}
  - {from: C, to: D, time: 20, capacity: 1}
  - {from: D, to: C, time: 20, capacity: 1}
vehicles:
  - {id: v1, start: A, end: D, timeWindow: {min: 0, max: 30}}
  - {id: v2, start: B, end: C, timeWindow: {min: 0, max: 25}}
  - {id: v3, start: C, end: A, timeWindow: {min: 0, max: 35}}
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestRunPrintsReport(t *testing.T) {
	path := writeFile(t, "city.yaml", cityYAML)
	var out, errOut bytes.Buffer
	code := run(context.Background(), []string{"-seed", "3", "-config", "", path}, &out, &errOut)
	if code != 0 {
		t.Fatalf("exit %d: %s", code, errOut.String())
	}
	got := out.String()
	for _, want := range []string{"Vehicle v1: A -> B -> D (time 20)", "Total: 45", "Improvement: 0.00%", "seed 3"} {
		if !strings.Contains(got, want) {
			t.Fatalf("report missing %q:\n%s", want, got)
		}
	}
}

func TestRunUnreachableExitsNonZero(t *testing.T) {
	path := writeFile(t, "bad.yaml", cityYAML+"  - {id: v4, start: A, end: Z}\n")
	var out, errOut bytes.Buffer
	if code := run(context.Background(), []string{"-config", "", path}, &out, &errOut); code != 1 {
		t.Fatalf("exit %d, want 1", code)
	}
	if !strings.Contains(out.String(), "No feasible solution found (unreachable)") {
		t.Fatalf("report: %s", out.String())
	}
	if !strings.Contains(errOut.String(), "not reachable") {
		t.Fatalf("stderr: %s", errOut.String())
	}
}

func TestRunBadInput(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := run(context.Background(), nil, &out, &errOut); code != 2 {
		t.Fatalf("no args: exit %d", code)
	}
	path := writeFile(t, "city.yaml", cityYAML)
	if code := run(context.Background(), []string{"-config", "", "-cooling", "1.5", path}, &out, &errOut); code != 2 {
		t.Fatalf("bad cooling: exit %d", code)
	}
}

func TestRunCompareSearches(t *testing.T) {
	doc := cityYAML + `nodes:
  - {id: A, x: 0, y: 0}
  - {id: B, x: 5, y: 0}
  - {id: C, x: 0, y: 10}
  - {id: D, x: 15, y: 5}
`
	path := writeFile(t, "city.yaml", doc)
	var out, errOut bytes.Buffer
	code := run(context.Background(), []string{"-config", "", "-seed", "3", "-compare", path}, &out, &errOut)
	if code != 0 {
		t.Fatalf("exit %d: %s", code, errOut.String())
	}
	got := out.String()
	for _, want := range []string{
		"Path search comparison",
		"Vehicle v1 (A -> D):",
		"Dijkstra A -> B -> D (time 20,",
		"BFS      A -> B -> D (time 20,",
		"A*       A -> B -> D (time 20,",
		"Vehicle v3 (C -> A):",
		"DFS      C -> A (time 10,",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("comparison missing %q:\n%s", want, got)
		}
	}
}

func TestRunCompareUnreachable(t *testing.T) {
	path := writeFile(t, "bad.yaml", cityYAML+"  - {id: v4, start: A, end: Z}\n")
	var out, errOut bytes.Buffer
	if code := run(context.Background(), []string{"-config", "", "-compare", path}, &out, &errOut); code != 1 {
		t.Fatalf("exit %d, want 1", code)
	}
	if !strings.Contains(out.String(), "GBFS     no path") {
		t.Fatalf("comparison: %s", out.String())
	}
}

func TestUsageDescribesTrials(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := run(context.Background(), []string{"-h"}, &out, &errOut); code != 2 {
		t.Fatalf("exit %d", code)
	}
	if !strings.Contains(errOut.String(), "candidates drawn and scored per iteration") {
		t.Fatalf("usage: %s", errOut.String())
	}
}
