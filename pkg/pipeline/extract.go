package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tenderlens/tenderlens/pkg/chunk"
	"github.com/tenderlens/tenderlens/pkg/events"
	"github.com/tenderlens/tenderlens/pkg/llm"
	"github.com/tenderlens/tenderlens/pkg/models"
	"github.com/tenderlens/tenderlens/pkg/parse"
	"github.com/tenderlens/tenderlens/pkg/prompts"
	"github.com/tenderlens/tenderlens/pkg/unpack"
)

// errorSentinel marks documents whose conversion failed; their content
// is a human-readable failure note instead of markdown.
const errorSentinel = "[ERROR]"

// streamRetryPause is the wait before retrying a failed streaming
// extraction without streaming.
const streamRetryPause = 2 * time.Second

// extraction is one document's structured facts with its token cost.
type extraction struct {
	doc   parse.Document
	facts map[string]any
	usage llm.Usage
}

// parseAll converts every file under the parse concurrency cap.
// Results keep input order regardless of completion order. Conversion
// failures surface as sentinel documents, never as errors.
func (p *Pipeline) parseAll(ctx context.Context, files []unpack.File) []parse.Document {
	docs := make([]parse.Document, len(files))

	var g errgroup.Group
	g.SetLimit(p.cfg.ParseConcurrency)
	for i, f := range files {
		g.Go(func() error {
			doc := p.parser.ParseFile(ctx, f.Name, f.Data)
			docs[i] = doc

			if err := p.publisher.Publish(ctx, p.analysisID, models.EventFileParsed, "parsing",
				events.FileParsedPayload{
					Filename:      doc.Filename,
					Type:          doc.Type,
					Format:        doc.Format,
					Pages:         doc.Pages,
					SizeKB:        doc.SizeBytes / 1024,
					TokenEstimate: doc.TokenEstimate,
				}); err != nil {
				p.logger.Error("Failed to publish file_parsed event",
					"filename", doc.Filename, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return docs
}

// extractAll runs per-document extraction under the extract
// concurrency cap. Documents with a parse-failure sentinel skip the
// LLM entirely and contribute an empty fact set carrying the failure
// note. Individual failures never abort the batch.
func (p *Pipeline) extractAll(ctx context.Context, docs []parse.Document) []extraction {
	results := make([]extraction, len(docs))

	var g errgroup.Group
	g.SetLimit(p.cfg.ExtractConcurrency)
	for i, doc := range docs {
		if strings.HasPrefix(doc.Content, errorSentinel) {
			p.logger.Warn("Skipping unparsed document", "filename", doc.Filename)
			note := doc.Content
			if len(note) > 200 {
				note = note[:200]
			}
			results[i] = extraction{
				doc:   doc,
				facts: emptyFacts("Document skipped (parse failure): " + note),
			}
			p.publishItemError(ctx, doc.Filename, note)
			continue
		}

		g.Go(func() error {
			if err := p.publisher.Publish(ctx, p.analysisID, models.EventExtractionStarted, "extraction",
				events.ExtractionItemPayload{
					Filename: doc.Filename,
					Index:    i + 1,
					Total:    len(docs),
				}); err != nil {
				p.logger.Error("Failed to publish extraction_started event", "error", err)
			}

			facts, usage, err := p.extractDocument(ctx, doc)
			if err != nil {
				p.logger.Error("Extraction failed", "filename", doc.Filename, "error", err)
				results[i] = extraction{
					doc:   doc,
					facts: emptyFacts(fmt.Sprintf("Extraction failed: %v", err)),
				}
				p.publishItemError(ctx, doc.Filename, err.Error())
				return nil
			}

			results[i] = extraction{doc: doc, facts: facts, usage: usage}
			if err := p.publisher.Publish(ctx, p.analysisID, models.EventExtractionCompleted, "extraction",
				events.ExtractionItemPayload{
					Filename:  doc.Filename,
					Index:     i + 1,
					Total:     len(docs),
					TokensIn:  usage.InputTokens,
					TokensOut: usage.OutputTokens,
				}); err != nil {
				p.logger.Error("Failed to publish extraction_completed event", "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// extractDocument extracts structured facts from one document. Content
// that fits the size envelope goes through a single streaming call;
// oversized content fans out into overlapping chunks that are merged
// field by field.
func (p *Pipeline) extractDocument(ctx context.Context, doc parse.Document) (map[string]any, llm.Usage, error) {
	maxChars := chunk.MaxChars(p.cfg.ContextLength)
	chunks := chunk.Split(doc.Content, maxChars)

	if len(chunks) == 1 {
		p.logger.Info("Single-pass extraction",
			"filename", doc.Filename,
			"chars", len(doc.Content))
		return p.extractChunk(ctx, doc.Filename, doc, doc.Content)
	}

	p.logger.Info("Chunked extraction",
		"filename", doc.Filename,
		"chunks", len(chunks),
		"chars", len(doc.Content),
		"max_chars", maxChars)

	partials := make([]map[string]any, len(chunks))
	usages := make([]llm.Usage, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.ChunkConcurrency)
	for i, part := range chunks {
		g.Go(func() error {
			name := fmt.Sprintf("%s (dalis %d/%d)", doc.Filename, i+1, len(chunks))
			content := prompts.ChunkPartNote(i+1, len(chunks)) + part
			facts, usage, err := p.extractChunk(gctx, name, doc, content)
			if err != nil {
				return fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
			}
			partials[i] = facts
			usages[i] = usage
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, llm.Usage{}, err
	}

	var total llm.Usage
	for _, u := range usages {
		total.InputTokens += u.InputTokens
		total.OutputTokens += u.OutputTokens
	}
	return chunk.Merge(partials), total, nil
}

// extractChunk runs one streaming extraction call. A streaming failure
// is retried once without streaming after a short pause.
func (p *Pipeline) extractChunk(ctx context.Context, name string, doc parse.Document, content string) (map[string]any, llm.Usage, error) {
	req := llm.StructuredRequest{
		System:     prompts.ExtractionSystem,
		User:       prompts.ExtractionUser(content, name, doc.Type, doc.Pages),
		Spec:       p.specs.Report,
		Model:      p.model,
		Thinking:   llm.ThinkingLow,
		OnThinking: func(text string) { p.pushThinking("extraction", text) },
	}

	raw, usage, err := p.gateway.CompleteStructuredStreaming(ctx, req)
	if err != nil {
		p.logger.Warn("Streaming extraction failed, retrying without streaming",
			"filename", name, "error", err)
		p.sleep(streamRetryPause)
		if ctx.Err() != nil {
			return nil, llm.Usage{}, ctx.Err()
		}
		req.OnThinking = nil
		raw, usage, err = p.gateway.CompleteStructured(ctx, req)
		if err != nil {
			return nil, llm.Usage{}, err
		}
	}

	var facts map[string]any
	if err := json.Unmarshal(raw, &facts); err != nil {
		return nil, usage, fmt.Errorf("decode extraction result: %w", err)
	}
	return facts, usage, nil
}

func (p *Pipeline) publishItemError(ctx context.Context, filename, message string) {
	if err := p.publisher.Publish(ctx, p.analysisID, models.EventError, "extraction",
		events.ErrorPayload{
			Stage:    "extraction",
			Message:  message,
			Filename: filename,
		}); err != nil {
		p.logger.Error("Failed to publish error event", "filename", filename, "error", err)
	}
}

// emptyFacts is the in-band failure result for one document: no data,
// one confidence note naming what went wrong.
func emptyFacts(note string) map[string]any {
	return map[string]any{
		"confidence_notes": []any{note},
		"source_documents": []any{},
	}
}
