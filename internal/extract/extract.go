// Package extract turns uploaded documents into plain text for prompt context.
//
// Extraction never fails outright. Unreadable input yields a placeholder
// string and a Degraded result so one bad file cannot abort a chat.
package extract

import (
	"context"
	"fmt"
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
)

const (
	// MaxChars caps each document's contribution to the prompt.
	MaxChars        = 4000
	truncatedMarker = "... [Content truncated]"

	maxPDFPages = 10
	// Fewer extracted characters than this means the PDF is probably a scan.
	scannedThreshold = 50

	pdfVisionInstruction   = "Please extract all text content from this PDF file verbatim. Ignore layout, just text."
	imageVisionInstruction = "Extract all text content from this document/image verbatim. If it's an image without text, describe it in detail."

	scanPrefix  = "[AI Extracted from Scan]:\n"
	imagePrefix = "[Image Content]:\n"
)

// Vision reads text out of binary documents with a vision-capable model.
type Vision interface {
	ExtractText(ctx context.Context, data []byte, mimeType, instruction string) (string, error)
}

// Result is the text extracted from one document.
type Result struct {
	Kind Kind
	Text string
	// Degraded is set when Text is a placeholder rather than document content.
	Degraded bool
	// VisionUsed is set when the vision model produced the text.
	VisionUsed bool
}

type pageTextFunc func(data []byte, maxPages int) ([]string, error)

type Extractor struct {
	vision   Vision
	pdfPages pageTextFunc
}

// New builds an extractor. A nil vision leaves images and scanned PDFs degraded.
func New(vision Vision) *Extractor {
	return &Extractor{vision: vision, pdfPages: pdfPageTexts}
}

func (e *Extractor) Extract(ctx context.Context, filename string, data []byte) Result {
	kind := KindForFilename(filename)
	switch kind {
	case KindText:
		return Result{Kind: kind, Text: decodeText(data)}
	case KindPDF:
		return e.extractPDF(ctx, data)
	case KindDOCX:
		text, err := docxText(data)
		if err != nil {
			return Result{Kind: kind, Text: "[Error reading DOCX]", Degraded: true}
		}
		return Result{Kind: kind, Text: text}
	case KindImage:
		return e.extractImage(ctx, filename, data)
	default:
		return Unsupported(filename)
	}
}

// Unsupported is the placeholder for formats that are never decoded.
func Unsupported(filename string) Result {
	return Result{Kind: KindUnsupported, Text: fmt.Sprintf("[Unsupported file format: %s]", Ext(filename)), Degraded: true}
}

// FetchFailed is the placeholder for a document whose bytes could not be loaded.
func FetchFailed(filename string, err error) Result {
	return Result{
		Kind:     KindForFilename(filename),
		Text:     fmt.Sprintf("[Error downloading/processing file: %v]", err),
		Degraded: true,
	}
}

func (e *Extractor) extractPDF(ctx context.Context, data []byte) Result {
	var b strings.Builder
	pages, err := e.pdfPages(data, maxPDFPages)
	if err == nil {
		for _, p := range pages {
			if p != "" {
				b.WriteString(p)
				b.WriteString("\n")
			}
		}
		text := b.String()
		if utf8.RuneCountInString(strings.TrimSpace(text)) >= scannedThreshold {
			return Result{Kind: KindPDF, Text: text}
		}
	}

	if e.vision == nil {
		return Result{Kind: KindPDF, Text: "[Error reading PDF via AI: vision model not configured]", Degraded: true}
	}
	out, err := e.vision.ExtractText(ctx, data, "application/pdf", pdfVisionInstruction)
	if err != nil {
		return Result{Kind: KindPDF, Text: fmt.Sprintf("[Error reading PDF via AI: %v]", err), Degraded: true, VisionUsed: true}
	}
	return Result{Kind: KindPDF, Text: scanPrefix + out, VisionUsed: true}
}

func (e *Extractor) extractImage(ctx context.Context, filename string, data []byte) Result {
	if e.vision == nil {
		return Result{Kind: KindImage, Text: imagePrefix + "[AI Extraction Error: vision model not configured]", Degraded: true}
	}
	out, err := e.vision.ExtractText(ctx, data, imageMIME(filename, data), imageVisionInstruction)
	if err != nil {
		return Result{Kind: KindImage, Text: imagePrefix + fmt.Sprintf("[AI Extraction Error: %v]", err), Degraded: true, VisionUsed: true}
	}
	return Result{Kind: KindImage, Text: imagePrefix + out, VisionUsed: true}
}

// imageMIME prefers the sniffed type, then the extension, then JPEG.
func imageMIME(filename string, data []byte) string {
	if detected := mimetype.Detect(data); strings.HasPrefix(detected.String(), "image/") {
		return detected.String()
	}
	if byExt := mime.TypeByExtension(Ext(filename)); byExt != "" {
		mediaType, _, _ := strings.Cut(byExt, ";")
		return mediaType
	}
	return "image/jpeg"
}

func decodeText(data []byte) string {
	return strings.ToValidUTF8(string(data), "\uFFFD")
}

// Truncate caps text at MaxChars characters, marking the cut. Text of exactly
// MaxChars is returned unchanged.
func Truncate(text string) string {
	if utf8.RuneCountInString(text) <= MaxChars {
		return text
	}
	runes := []rune(text)
	return string(runes[:MaxChars]) + truncatedMarker
}
