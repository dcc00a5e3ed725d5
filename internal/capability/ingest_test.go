package capability

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestIngestPlainText(t *testing.T) {
	path := writeTempFile(t, "syllabus.txt", "Week 1: Limits\nWeek 2: Derivatives\n")
	ing := NewIngest(nil)

	out, err := ing.Execute(context.Background(), Invocation{
		UserID: "u1",
		Params: map[string]string{"name": "syllabus.txt", "path": path},
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !strings.Contains(out, "Derivatives") {
		t.Errorf("Extracted text missing content: %q", out)
	}
}

func TestIngestHTML(t *testing.T) {
	html := `<html><head><title>Notes</title></head><body>
		<article><h1>Photosynthesis</h1>
		<p>Light reactions convert solar energy into chemical energy stored in ATP.</p>
		<p>The Calvin cycle then fixes carbon dioxide into glucose molecules.</p>
		<script>alert("nope")</script></article></body></html>`
	path := writeTempFile(t, "notes.html", html)
	ing := NewIngest(nil)

	out, err := ing.Execute(context.Background(), Invocation{
		UserID: "u1",
		Params: map[string]string{"name": "notes.html", "path": path},
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !strings.Contains(out, "Calvin cycle") {
		t.Errorf("Extracted text missing content: %q", out)
	}
	if strings.Contains(out, "alert(") {
		t.Errorf("Script content must be stripped: %q", out)
	}
}

func TestIngestUnsupportedType(t *testing.T) {
	path := writeTempFile(t, "photo.png", "\x89PNG")
	ing := NewIngest(nil)

	_, err := ing.Execute(context.Background(), Invocation{
		UserID: "u1",
		Params: map[string]string{"name": "photo.png", "path": path},
	})
	if err == nil {
		t.Fatal("Expected error for unsupported file type")
	}
	if IsTransient(err) {
		t.Error("Unsupported file type is not retryable")
	}
}

func TestIngestMissingPath(t *testing.T) {
	ing := NewIngest(nil)
	_, err := ing.Execute(context.Background(), Invocation{UserID: "u1", Params: map[string]string{}})
	if err == nil {
		t.Fatal("Expected error when no file is given")
	}
}

func TestIngestSavesMaterialWhenCourseKnown(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	courseID, err := st.ResolveOrCreate(ctx, "u1", "Calculus", "")
	if err != nil {
		t.Fatal(err)
	}

	path := writeTempFile(t, "wk3.txt", "Week 3: Integrals and the fundamental theorem")
	ing := NewIngest(st)
	if _, err := ing.Execute(ctx, Invocation{
		UserID: "u1",
		Params: map[string]string{"name": "wk3.txt", "path": path, "course_id": courseID},
	}); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	found, err := st.SearchMaterials(ctx, courseID, "fundamental theorem", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 1 || found[0].Title != "wk3.txt" {
		t.Errorf("Ingested file was not stored as material: %+v", found)
	}
}

func TestChunkText(t *testing.T) {
	text := strings.Repeat("line one\nline two\n", 100)
	chunks := chunkText(text, 300)

	if len(chunks) < 2 {
		t.Fatalf("Expected multiple chunks, got %d", len(chunks))
	}
	var total int
	for i, c := range chunks {
		if len(c) > 300 {
			t.Errorf("chunk %d exceeds limit: %d bytes", i, len(c))
		}
		total += len(c)
	}
	if total == 0 {
		t.Error("Chunks lost all content")
	}

	single := chunkText("short", 300)
	if len(single) != 1 || single[0] != "short" {
		t.Errorf("Small input should be one chunk: %v", single)
	}
}

func TestTextExtractorRejectsBinary(t *testing.T) {
	path := writeTempFile(t, "data.txt", string([]byte{0xff, 0xfe, 0x00, 0x01}))

	if _, err := (TextExtractor{}).Extract(context.Background(), path); err == nil {
		t.Error("Expected error for non-UTF8 content")
	}
}
