// Package extractor reads transactions out of statement PDFs with Gemini.
package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"google.golang.org/genai"

	"github.com/dvloznov/statement-reconciler/internal/domain"
	"github.com/dvloznov/statement-reconciler/internal/logger"
)

// DefaultModelName is the default Gemini model used for parsing.
const DefaultModelName = "gemini-2.5-flash"

// Generator is the part of the genai client the extractor uses.
// *genai.Models satisfies it.
type Generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Config selects the Gemini backend.
type Config struct {
	Model    string
	APIKey   string
	Project  string
	Location string
}

// GeminiExtractor sends statements to Gemini as inline PDF blobs.
type GeminiExtractor struct {
	gen   Generator
	model string
}

// NewGeminiExtractor creates a genai client. With a Project set it talks to
// Vertex AI, otherwise to the Gemini API using APIKey (or GOOGLE_API_KEY).
func NewGeminiExtractor(ctx context.Context, cfg Config) (*GeminiExtractor, error) {
	cc := &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	}
	if cfg.Project != "" {
		cc.Backend = genai.BackendVertexAI
		cc.Project = cfg.Project
		cc.Location = cfg.Location
	} else {
		cc.Backend = genai.BackendGeminiAPI
		cc.APIKey = cfg.APIKey
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("NewGeminiExtractor: create genai client: %w", err)
	}
	return New(client.Models, cfg.Model), nil
}

// New wraps an existing generator. An empty model uses DefaultModelName.
func New(gen Generator, model string) *GeminiExtractor {
	if model == "" {
		model = DefaultModelName
	}
	return &GeminiExtractor{gen: gen, model: model}
}

// Parse extracts transactions from pdf. Errors talking to the model are
// returned as errors; problems with the document itself come back as an
// unsuccessful result.
func (e *GeminiExtractor) Parse(ctx context.Context, pdf []byte, opts domain.ExtractOptions) (*domain.ExtractionResult, error) {
	log := logger.FromContext(ctx)

	var forced *ParserInfo
	if opts.Parser != "" {
		p, ok := LookupParser(opts.Parser)
		if !ok {
			return failed(fmt.Sprintf("Unknown parser: %s. Available parsers: %s",
				opts.Parser, strings.Join(AvailableParsers(), ", "))), nil
		}
		forced = &p
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: buildPrompt(forced)},
				{
					InlineData: &genai.Blob{
						MIMEType: "application/pdf",
						Data:     pdf,
					},
				},
			},
		},
	}
	config := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0),
		ResponseMIMEType: "application/json",
	}

	log.Debug().Str("model", e.model).Int("bytes", len(pdf)).Msg("Sending statement to model")

	resp, err := e.gen.GenerateContent(ctx, e.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("Parse: generate content: %w", err)
	}
	if resp == nil {
		return failed("Empty response from model"), nil
	}
	rawText := resp.Text()
	if rawText == "" {
		return failed("Empty response from model"), nil
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(cleanModelJSON(rawText)), &parsed); err != nil {
		log.Warn().Err(err).Str("raw_response", truncate(rawText, 500)).Msg("Model returned invalid JSON")
		return failed(fmt.Sprintf("Could not read model output: %v", err)), nil
	}

	defaultCurrency := parsers[GenericParserKey].DefaultCurrency
	if forced != nil {
		defaultCurrency = forced.DefaultCurrency
	}
	out, err := transformModelOutput(parsed, defaultCurrency)
	if err != nil {
		return failed(err.Error()), nil
	}

	key, problem := resolveParserKey(forced, out.BankKey)
	if problem != "" {
		return failed(problem), nil
	}

	result := &domain.ExtractionResult{
		Success:      true,
		ParserKey:    key,
		Transactions: out.Transactions,
		Warnings:     out.Warnings,
		Confidence:   out.Confidence,
		PageCount:    out.PageCount,
		Period:       out.Period,
	}
	if pages := countPages(pdf); pages > 0 {
		result.PageCount = pages
	}
	if forced == nil && key == GenericParserKey && out.BankKey != GenericParserKey {
		result.Warnings = append(result.Warnings, "Statement format not recognised; parsed with the generic parser")
	}

	log.Info().
		Str("parser", key).
		Int("transactions", len(result.Transactions)).
		Int("warnings", len(result.Warnings)).
		Float64("confidence", result.Confidence).
		Msg("Statement extracted")

	return result, nil
}

// resolveParserKey decides which parser key the result reports. A forced
// parser must agree with the bank the model saw unless either side is generic.
func resolveParserKey(forced *ParserInfo, detected string) (string, string) {
	detectedInfo, known := LookupParser(detected)

	if forced != nil {
		if known && forced.Key != GenericParserKey && detectedInfo.Key != GenericParserKey && detectedInfo.Key != forced.Key {
			return "", fmt.Sprintf("Parser '%s' cannot parse this document. The statement doesn't appear to be from %s.",
				forced.Key, forced.Name)
		}
		return forced.Key, ""
	}
	if known {
		return detectedInfo.Key, ""
	}
	return GenericParserKey, ""
}

var pageObject = regexp.MustCompile(`/Type\s*/Page\b`)

// countPages counts page objects in the raw PDF. It returns 0 for PDFs whose
// page tree lives in compressed object streams.
func countPages(pdf []byte) int {
	return len(pageObject.FindAllIndex(pdf, -1))
}

func failed(msg string) *domain.ExtractionResult {
	return &domain.ExtractionResult{
		Success:      false,
		Errors:       []string{msg},
		Transactions: []domain.ExtractedTransaction{},
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
