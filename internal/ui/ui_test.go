package ui

import (
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/formpal/formpal/internal/schema"
)

func init() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

func TestRenderItems(t *testing.T) {
	items := schema.Collection{
		{ID: "qi_2", Title: "", Content: "line one\nline two", CreatedAt: time.Date(2024, 3, 5, 12, 0, 0, 0, time.Local)},
		{ID: "qi_1", Title: "Salary", Content: "90k", CreatedAt: time.Date(2023, 12, 25, 12, 0, 0, 0, time.Local)},
	}

	out := RenderItems(items, 0)

	for _, want := range []string{"qi_2  Untitled  05 Mar 2024", "line one line two", "qi_1  Salary  25 Dec 2023", "90k"} {
		if !strings.Contains(out, want) {
			t.Errorf("Output missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "qi_2") > strings.Index(out, "qi_1") {
		t.Error("Items not rendered in stored order")
	}
}

func TestRenderItemsEmpty(t *testing.T) {
	if out := RenderItems(nil, 0); !strings.Contains(out, "No questions saved yet") {
		t.Errorf("Unexpected output %q", out)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  string
	}{
		{"short", 10, "short"},
		{"exactly", 7, "exactly"},
		{"much longer text", 5, "much…"},
		{"héllo wörld", 4, "hél…"},
		{"anything", 0, "anything"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.width); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.width, got, tt.want)
		}
	}
}

func TestFormatDateZero(t *testing.T) {
	if got := FormatDate(time.Time{}); got != "-" {
		t.Errorf("FormatDate(zero) = %q", got)
	}
}
