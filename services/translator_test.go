package services

import (
	"bytes"
	"context"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"testing"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func readMultipartFields(t *testing.T, r *http.Request) map[string]string {
	t.Helper()

	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/form-data" {
		t.Fatalf("expected multipart/form-data, got %q (err=%v)", mediaType, err)
	}

	reader := multipart.NewReader(r.Body, params["boundary"])
	defer func() { _ = r.Body.Close() }()

	fields := make(map[string]string)
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("failed to read multipart part: %v", err)
		}

		if part.FileName() == "" {
			b, _ := io.ReadAll(part)
			fields[part.FormName()] = string(b)
		} else {
			_, _ = io.Copy(io.Discard, part)
		}
		_ = part.Close()
	}
	return fields
}

func writeTempInput(t *testing.T) string {
	t.Helper()
	inputPath := filepath.Join(t.TempDir(), "input.docx")
	if err := os.WriteFile(inputPath, []byte("dummy"), 0644); err != nil {
		t.Fatalf("failed to write temp input: %v", err)
	}
	return inputPath
}

func TestTranslatorService_Translate_SendsEngineFields(t *testing.T) {
	t.Parallel()

	svc := NewTranslatorService("http://example.invalid")
	svc.client.Transport = roundTripFunc(func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/translate/document" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		fields := readMultipartFields(t, r)
		if fields["targetLanguage"] != "fr" {
			t.Fatalf("expected targetLanguage=fr, got %q", fields["targetLanguage"])
		}
		if fields["sourceLanguage"] != "en" {
			t.Fatalf("expected sourceLanguage=en, got %q", fields["sourceLanguage"])
		}
		if fields["outputFormat"] != "pdf" {
			t.Fatalf("expected outputFormat=pdf, got %q", fields["outputFormat"])
		}
		if fields["preserveFormatting"] != "true" {
			t.Fatalf("expected preserveFormatting=true, got %q", fields["preserveFormatting"])
		}
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(bytes.NewReader([]byte("%PDF-1.4\n%EOF\n"))),
			Header:     make(http.Header),
		}, nil
	})

	res, err := svc.Translate(context.Background(), writeTempInput(t), "fr", TranslateOptions{
		SourceLanguage:     "en",
		OutputFormat:       "pdf",
		PreserveFormatting: true,
	})
	if err != nil {
		t.Fatalf("Translate failed: %v", err)
	}

	data, err := os.ReadFile(res.OutputPath)
	if err != nil {
		t.Fatalf("failed to read output: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty output")
	}
	if res.LogPath != "" {
		t.Fatalf("expected no log without X-Translation-Log, got %q", res.LogPath)
	}
}

func TestTranslatorService_Translate_FetchesChangelog(t *testing.T) {
	t.Parallel()

	svc := NewTranslatorService("http://example.invalid")
	svc.client.Transport = roundTripFunc(func(r *http.Request) (*http.Response, error) {
		if r.Method == "GET" {
			if r.URL.Path != "/translate/logs/log-42" {
				t.Fatalf("unexpected log path: %s", r.URL.Path)
			}
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(bytes.NewReader([]byte("slide 1: translated title\n"))),
				Header:     make(http.Header),
			}, nil
		}
		header := make(http.Header)
		header.Set("X-Translation-Log", "log-42")
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(bytes.NewReader([]byte("translated bytes"))),
			Header:     header,
		}, nil
	})

	res, err := svc.Translate(context.Background(), writeTempInput(t), "es", TranslateOptions{})
	if err != nil {
		t.Fatalf("Translate failed: %v", err)
	}
	if res.LogPath == "" {
		t.Fatal("expected a changelog path")
	}
	log, err := os.ReadFile(res.LogPath)
	if err != nil {
		t.Fatalf("failed to read changelog: %v", err)
	}
	if string(log) != "slide 1: translated title\n" {
		t.Fatalf("unexpected changelog content: %q", log)
	}
}

func TestTranslatorService_Translate_EngineError(t *testing.T) {
	t.Parallel()

	svc := NewTranslatorService("http://example.invalid")
	svc.client.Transport = roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusUnprocessableEntity,
			Body:       io.NopCloser(bytes.NewReader([]byte("unsupported document"))),
			Header:     make(http.Header),
		}, nil
	})

	_, err := svc.Translate(context.Background(), writeTempInput(t), "es", TranslateOptions{})
	if err == nil {
		t.Fatal("expected an error for a non-200 engine response")
	}
}
