package strategy

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseContent_PositionedText(t *testing.T) {
	stream := []byte(`BT
1 0 0 1 72 700 Tm
(Name) Tj
1 0 0 1 200 700 Tm
(Amount) Tj
1 0 0 1 72 680 Tm
(Widget) Tj
1 0 0 1 200 680 Tm
(42) Tj
ET`)
	pc := parseContent(stream)
	if len(pc.runs) != 4 {
		t.Fatalf("expected 4 runs, got %d: %+v", len(pc.runs), pc.runs)
	}
	if pc.runs[0].text != "Name" || pc.runs[0].x != 72 || pc.runs[0].y != 700 {
		t.Fatalf("first run wrong: %+v", pc.runs[0])
	}
	if pc.runs[3].text != "42" || pc.runs[3].x != 200 || pc.runs[3].y != 680 {
		t.Fatalf("last run wrong: %+v", pc.runs[3])
	}
}

func TestParseContent_RelativeMoves(t *testing.T) {
	stream := []byte(`BT
72 700 Td
(first) Tj
0 -20 Td
(second) Tj
ET`)
	pc := parseContent(stream)
	if len(pc.runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(pc.runs))
	}
	if pc.runs[1].y != 680 {
		t.Fatalf("Td should move relative: got y=%v", pc.runs[1].y)
	}
}

func TestParseContent_TJArray(t *testing.T) {
	stream := []byte(`BT
1 0 0 1 72 700 Tm
[(Hel) -20 (lo)] TJ
ET`)
	pc := parseContent(stream)
	if len(pc.runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(pc.runs))
	}
	if pc.runs[0].text != "Hello" {
		t.Fatalf("TJ segments should concatenate: got %q", pc.runs[0].text)
	}
}

func TestParseContent_Escapes(t *testing.T) {
	stream := []byte(`BT
1 0 0 1 10 10 Tm
(a\(b\)c \134 \101) Tj
ET`)
	pc := parseContent(stream)
	if len(pc.runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(pc.runs))
	}
	want := `a(b)c \ A`
	if pc.runs[0].text != want {
		t.Fatalf("escape decoding: got %q, want %q", pc.runs[0].text, want)
	}
}

func TestParseContent_NextLineOperators(t *testing.T) {
	stream := []byte(`BT
14 TL
1 0 0 1 72 700 Tm
(one) Tj
T*
(two) '
ET`)
	pc := parseContent(stream)
	if len(pc.runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(pc.runs))
	}
	// T* then ' each advance one leading: 700 - 14 - 14.
	if pc.runs[1].y != 672 {
		t.Fatalf("expected y=672 after T* and ', got %v", pc.runs[1].y)
	}
}

func TestParseContent_RuleOps(t *testing.T) {
	stream := []byte(`
72 600 100 50 re S
72 650 m 172 650 l S
BT
1 0 0 1 80 620 Tm
(cell) Tj
ET`)
	pc := parseContent(stream)
	if pc.ruleOps != 2 {
		t.Fatalf("expected 2 rule ops (re + l), got %d", pc.ruleOps)
	}
	if len(pc.runs) != 1 || pc.runs[0].text != "cell" {
		t.Fatalf("text alongside paths lost: %+v", pc.runs)
	}
}

func TestParseContent_HexStringsSkipped(t *testing.T) {
	stream := []byte(`BT
1 0 0 1 10 10 Tm
<0041> Tj
(kept) Tj
ET`)
	pc := parseContent(stream)
	// Hex strings are glyph indices without a CMap: dropped, not garbled.
	if len(pc.runs) != 1 || pc.runs[0].text != "kept" {
		t.Fatalf("expected only literal string kept, got %+v", pc.runs)
	}
}

func TestCleanCell(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  hello   world  ", "hello world"},
		{"tab\there", "tab here"},
		{"", ""},
		{"\x01\x02", ""},
	}
	for _, tt := range tests {
		if got := cleanCell(tt.in); got != tt.want {
			t.Errorf("cleanCell(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestReadPages_MissingFile(t *testing.T) {
	_, err := readPages("/nonexistent/file.pdf")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestReadPages_NotAPDF(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fake.pdf")
	if err := os.WriteFile(path, []byte("this is not a pdf"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := readPages(path)
	if err == nil {
		t.Fatal("expected error for non-PDF content")
	}
	if !strings.Contains(err.Error(), "pdfcpu read") {
		t.Fatalf("expected pdfcpu read error, got: %v", err)
	}
}
