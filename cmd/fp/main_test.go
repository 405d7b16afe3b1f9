package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/formpal/formpal/internal/config"
	"github.com/formpal/formpal/internal/page"
	"github.com/formpal/formpal/internal/session"
)

func testApp(t *testing.T, backend string) *App {
	t.Helper()
	home := t.TempDir()
	v := config.New(home)
	v.Set("store.backend", backend)
	v.Set("broadcast.mode", config.BroadcastLocal)

	cfg, err := config.Load(v, home)
	if err != nil {
		t.Fatalf("config.Load failed: %v", err)
	}
	a := NewApp(cfg)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestParseSince(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.Local)

	got, err := parseSince("2024-03-01", now)
	if err != nil {
		t.Fatalf("parseSince failed: %v", err)
	}
	if !got.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.Local)) {
		t.Errorf("parseSince(date) = %v", got)
	}

	got, err = parseSince("2 weeks ago", now)
	if err != nil {
		t.Fatalf("parseSince failed: %v", err)
	}
	if want := now.Add(-14 * 24 * time.Hour); !got.Equal(want) {
		t.Errorf("parseSince(2 weeks ago) = %v, want %v", got, want)
	}

	if _, err := parseSince("gibberish", now); err == nil {
		t.Error("Expected error for unparseable text")
	}
}

func TestSessionsShareStore(t *testing.T) {
	for _, backend := range []string{config.BackendSQLite, config.BackendFile} {
		t.Run(backend, func(t *testing.T) {
			a := testApp(t, backend)
			ctx := context.Background()

			writer, err := a.OpenSession(ctx, SessionOptions{})
			if err != nil {
				t.Fatalf("OpenSession failed: %v", err)
			}
			defer writer.Stop()

			if n := writer.Add(ctx, "Portfolio link", "example.com"); n.Kind != session.NoticeSuccess {
				t.Fatalf("Add = %+v", n)
			}

			form := page.NewForm(page.FormSpec{Groups: []page.GroupSpec{{
				Name:   page.GroupQuestionAnswers,
				Fields: []page.FieldSpec{{Label: "Please share your portfolio link"}},
			}}})
			reader, err := a.OpenSession(ctx, SessionOptions{Source: form})
			if err != nil {
				t.Fatalf("OpenSession failed: %v", err)
			}
			defer reader.Stop()

			if n := reader.AutofillAllOnLoad(); n.Message != "Filled 1 field(s)" {
				t.Errorf("AutofillAllOnLoad = %+v", n)
			}

			path := filepath.Join(t.TempDir(), "form.yaml")
			if err := writeForm(form, path, false); err != nil {
				t.Fatalf("writeForm failed: %v", err)
			}
			saved, err := page.LoadForm(path)
			if err != nil {
				t.Fatalf("LoadForm failed: %v", err)
			}
			field, _ := saved.Lookup("Please share your portfolio link")
			if field.Value() != "example.com" {
				t.Errorf("Saved value = %q", field.Value())
			}
		})
	}
}

func TestNoticeErr(t *testing.T) {
	if err := noticeErr(session.Notice{Kind: session.NoticeError, Message: "boom"}); err == nil || err.Error() != "boom" {
		t.Errorf("noticeErr(error) = %v", err)
	}
	if err := noticeErr(session.Notice{}); err != nil {
		t.Errorf("noticeErr(silent) = %v", err)
	}
}
