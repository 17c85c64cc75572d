package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
)

// TranslateOptions mirror the convert request knobs passed through to the
// translation engine.
type TranslateOptions struct {
	SourceLanguage     string
	OutputFormat       string
	PreserveFormatting bool
}

// TranslationResult points at the local files produced for one target
// language: the translated document and, when the engine emitted one, a
// human-readable changelog.
type TranslationResult struct {
	OutputPath string
	LogPath    string
}

// TranslatorService drives the external translation engine over HTTP.
// It is one concrete executor; the orchestrator only sees the interface,
// so a subprocess or in-process engine can be swapped in.
type TranslatorService struct {
	baseURL string
	client  *http.Client
}

func NewTranslatorService(baseURL string) *TranslatorService {
	return &TranslatorService{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 0, // Use context timeout instead
		},
	}
}

// Translate sends the document to the engine for one target language and
// writes the translated bytes next to the input. The returned log path is
// empty when the engine produced no changelog.
func (t *TranslatorService) Translate(ctx context.Context, inputPath string, targetLang string, opts TranslateOptions) (*TranslationResult, error) {
	file, err := os.Open(inputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}
	defer file.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("files", filepath.Base(inputPath))
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("failed to copy file: %w", err)
	}

	writer.WriteField("targetLanguage", targetLang)
	if opts.SourceLanguage != "" {
		writer.WriteField("sourceLanguage", opts.SourceLanguage)
	}
	if opts.OutputFormat != "" {
		writer.WriteField("outputFormat", opts.OutputFormat)
	}
	writer.WriteField("preserveFormatting", strconv.FormatBool(opts.PreserveFormatting))

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close writer: %w", err)
	}

	url := fmt.Sprintf("%s/translate/document", t.baseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("translator request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("translator returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	outputPath := fmt.Sprintf("%s.%s.translated", inputPath, targetLang)
	outFile, err := os.Create(outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	defer outFile.Close()

	if _, err := io.Copy(outFile, resp.Body); err != nil {
		return nil, fmt.Errorf("failed to save translated file: %w", err)
	}

	result := &TranslationResult{OutputPath: outputPath}

	// Engines that record per-run changelogs expose them under the id
	// returned in X-Translation-Log.
	if logID := resp.Header.Get("X-Translation-Log"); logID != "" {
		logPath, err := t.fetchLog(ctx, logID, outputPath)
		if err != nil {
			return nil, err
		}
		result.LogPath = logPath
	}

	return result, nil
}

func (t *TranslatorService) fetchLog(ctx context.Context, logID string, outputPath string) (string, error) {
	url := fmt.Sprintf("%s/translate/logs/%s", t.baseURL, logID)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create log request: %w", err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("log request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("translator log endpoint returned status %d", resp.StatusCode)
	}

	logPath := outputPath + ".log.txt"
	logFile, err := os.Create(logPath)
	if err != nil {
		return "", fmt.Errorf("failed to create log file: %w", err)
	}
	defer logFile.Close()

	if _, err := io.Copy(logFile, resp.Body); err != nil {
		return "", fmt.Errorf("failed to save translation log: %w", err)
	}

	return logPath, nil
}
