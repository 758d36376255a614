package parser

import (
	"archive/zip"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/jung-kurt/gofpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"notes-rag/internal/config"
	"notes-rag/internal/models"
)

// writePDF renders one line of text per page, an empty string gives a blank page
func writePDF(t *testing.T, pages ...string) string {
	t.Helper()
	doc := gofpdf.New("P", "mm", "A4", "")
	doc.SetCompression(false)
	for _, text := range pages {
		doc.AddPage()
		doc.SetFont("Helvetica", "", 10)
		if text != "" {
			doc.Cell(0, 10, text)
		}
	}
	path := filepath.Join(t.TempDir(), "notes.pdf")
	require.NoError(t, doc.OutputFileAndClose(path))
	return path
}

// numbered words keep every chunk distinguishable
func words(prefix string, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("%s%03d", prefix, i)
	}
	return strings.Join(parts, " ")
}

func TestLoadPDF(t *testing.T) {
	ctx := context.Background()

	t.Run("ShouldFailForMissingFile", func(t *testing.T) {
		_, err := LoadPDF(ctx, filepath.Join(t.TempDir(), "missing.pdf"), nil)
		require.ErrorIs(t, err, ErrFileNotFound)
		assert.Contains(t, err.Error(), "missing.pdf")
	})

	t.Run("ShouldSplitPagesIntoBoundedChunks", func(t *testing.T) {
		path := writePDF(t, words("alpha", 200), words("beta", 200), words("gamma", 30))
		chunks, err := LoadPDF(ctx, path, nil)
		require.NoError(t, err)
		require.NotEmpty(t, chunks)

		lastPage := 0
		for i, chunk := range chunks {
			assert.LessOrEqual(t, utf8.RuneCountInString(chunk.Content), models.DefaultChunkSize)
			assert.GreaterOrEqual(t, chunk.PageNumber, lastPage)
			assert.Equal(t, 3, chunk.TotalPages)
			assert.Equal(t, path, chunk.Source)
			assert.Equal(t, i, chunk.Index)
			if chunk.PageNumber != lastPage {
				assert.Equal(t, 1, chunk.ChunkID)
			}
			lastPage = chunk.PageNumber
		}
		assert.Equal(t, 3, lastPage)
		assert.True(t, strings.HasPrefix(chunks[0].Content, "alpha000"))
	})

	t.Run("ShouldOverlapConsecutiveChunks", func(t *testing.T) {
		path := writePDF(t, words("delta", 300))
		chunks, err := LoadPDF(ctx, path, nil)
		require.NoError(t, err)
		require.Greater(t, len(chunks), 1)
		for i := 1; i < len(chunks); i++ {
			first := strings.Fields(chunks[i].Content)[0]
			assert.Contains(t, chunks[i-1].Content, first)
		}
	})

	t.Run("ShouldHonorConfiguredWindow", func(t *testing.T) {
		cfg := config.Default()
		cfg.RAG.ChunkSize = 120
		cfg.RAG.ChunkOverlap = 10
		path := writePDF(t, words("eps", 100))
		chunks, err := LoadPDF(ctx, path, cfg)
		require.NoError(t, err)
		require.Greater(t, len(chunks), 3)
		for _, chunk := range chunks {
			assert.LessOrEqual(t, utf8.RuneCountInString(chunk.Content), 120)
		}
	})

	t.Run("ShouldBeIdempotent", func(t *testing.T) {
		path := writePDF(t, words("zeta", 150), words("eta", 150))
		first, err := LoadPDF(ctx, path, nil)
		require.NoError(t, err)
		second, err := LoadPDF(ctx, path, nil)
		require.NoError(t, err)
		require.Len(t, second, len(first))
		for i := range first {
			assert.Equal(t, first[i].Content, second[i].Content)
		}
	})

	t.Run("ShouldReturnNoChunksForBlankPages", func(t *testing.T) {
		path := writePDF(t, "", "")
		chunks, err := LoadPDF(ctx, path, nil)
		require.NoError(t, err)
		assert.Empty(t, chunks)
	})

	t.Run("ShouldPropagateParserErrors", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "broken.pdf")
		require.NoError(t, os.WriteFile(path, []byte("definitely not a pdf"), 0o600))
		_, err := LoadPDF(ctx, path, nil)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrFileNotFound)
	})
}

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("ShouldRejectUnknownExtension", func(t *testing.T) {
		_, err := Load(ctx, "slides.key", nil)
		require.ErrorIs(t, err, ErrUnsupportedFormat)
	})

	t.Run("ShouldFailForMissingFileOfAnyFormat", func(t *testing.T) {
		_, err := Load(ctx, filepath.Join(t.TempDir(), "notes.md"), nil)
		require.ErrorIs(t, err, ErrFileNotFound)
	})

	t.Run("ShouldDispatchPDF", func(t *testing.T) {
		path := writePDF(t, "photosynthesis converts light into chemical energy")
		chunks, err := Load(ctx, path, nil)
		require.NoError(t, err)
		require.Len(t, chunks, 1)
		assert.Equal(t, "photosynthesis converts light into chemical energy", chunks[0].Content)
		assert.Equal(t, 1, chunks[0].PageNumber)
	})

	t.Run("ShouldLoadText", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "notes.txt")
		require.NoError(t, os.WriteFile(path, []byte("first paragraph\n\nsecond paragraph"), 0o600))
		chunks, err := Load(ctx, path, nil)
		require.NoError(t, err)
		require.Len(t, chunks, 1)
		assert.Equal(t, "first paragraph\n\nsecond paragraph", chunks[0].Content)
	})

	t.Run("ShouldStripMarkdownSyntax", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "notes.md")
		body := "# Cells\n\nThe **nucleus** holds DNA.\n\n- mitochondria\n- ribosomes\n"
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
		chunks, err := Load(ctx, path, nil)
		require.NoError(t, err)
		require.Len(t, chunks, 1)
		content := chunks[0].Content
		assert.Contains(t, content, "Cells")
		assert.Contains(t, content, "The nucleus holds DNA.")
		assert.Contains(t, content, "mitochondria")
		assert.NotContains(t, content, "**")
		assert.NotContains(t, content, "#")
	})

	t.Run("ShouldLoadSpreadsheetSheetsAsPages", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "grades.xlsx")
		book := excelize.NewFile()
		require.NoError(t, book.SetCellValue("Sheet1", "A1", "topic"))
		require.NoError(t, book.SetCellValue("Sheet1", "B1", "score"))
		require.NoError(t, book.SetCellValue("Sheet1", "A2", "algebra"))
		require.NoError(t, book.SetCellValue("Sheet1", "B2", "91"))
		_, err := book.NewSheet("Sheet2")
		require.NoError(t, err)
		require.NoError(t, book.SetCellValue("Sheet2", "A1", "geometry"))
		require.NoError(t, book.SaveAs(path))
		require.NoError(t, book.Close())

		chunks, err := Load(ctx, path, nil)
		require.NoError(t, err)
		require.Len(t, chunks, 2)
		assert.Contains(t, chunks[0].Content, "## Sheet: Sheet1")
		assert.Contains(t, chunks[0].Content, "algebra\t91")
		assert.Equal(t, 2, chunks[1].PageNumber)
		assert.Contains(t, chunks[1].Content, "geometry")

		pages, err := loadWorkbookPages(ctx, path)
		require.NoError(t, err)
		require.Len(t, pages, 2)
		assert.Contains(t, pages[0].PageContent, "topic\tscore")
	})

	t.Run("ShouldLoadDOCXParagraphs", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "notes.docx")
		writeDOCX(t, path, "Osmosis moves water.", "Diffusion &amp; transport.")
		chunks, err := Load(ctx, path, nil)
		require.NoError(t, err)
		require.Len(t, chunks, 1)
		assert.Equal(t, "Osmosis moves water.\n\nDiffusion & transport.", chunks[0].Content)
	})

	t.Run("ShouldLoadSlidesInNumericOrder", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "lecture.pptx")
		slide := func(lines ...string) string {
			var body strings.Builder
			for _, l := range lines {
				body.WriteString(`<a:p><a:r><a:rPr lang="en-US"/><a:t>` + l + `</a:t></a:r></a:p>`)
			}
			return `<p:sld xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"><p:cSld><p:spTree><p:sp><p:txBody>` +
				body.String() + `</p:txBody></p:sp></p:spTree></p:cSld></p:sld>`
		}
		writeZip(t, path, map[string]string{
			"ppt/slides/slide1.xml":             slide("Cell structure", "Membranes"),
			"ppt/slides/slide2.xml":             slide("Respiration"),
			"ppt/slides/slide10.xml":            slide("Summary &amp; review"),
			"ppt/slides/_rels/slide1.xml.rels":  "<Relationships/>",
			"ppt/slideLayouts/slideLayout1.xml": slide("layout text"),
		})

		chunks, err := Load(ctx, path, nil)
		require.NoError(t, err)
		require.Len(t, chunks, 3)
		assert.Equal(t, "Cell structure\nMembranes", chunks[0].Content)
		assert.Equal(t, "Respiration", chunks[1].Content)
		assert.Equal(t, "Summary & review", chunks[2].Content)
		assert.Equal(t, 3, chunks[2].PageNumber)
		assert.Equal(t, 3, chunks[2].TotalPages)
	})
}

func writeDOCX(t *testing.T, path string, paragraphs ...string) {
	t.Helper()
	var body strings.Builder
	for _, p := range paragraphs {
		body.WriteString(`<w:p><w:r><w:t xml:space="preserve">` + p + `</w:t></w:r></w:p>`)
	}
	files := map[string]string{
		"word/document.xml": `<?xml version="1.0" encoding="UTF-8"?>` +
			`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
			body.String() + `</w:body></w:document>`,
		"word/_rels/document.xml.rels": `<?xml version="1.0" encoding="UTF-8"?>` +
			`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"></Relationships>`,
	}
	writeZip(t, path, files)
}

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func TestMarkdownToText(t *testing.T) {
	t.Run("ShouldSeparateBlocksWithOneBlankLine", func(t *testing.T) {
		got := markdownToText([]byte("# Title\n\nFirst *para*.\n\n\n\nSecond para.\n"))
		assert.Equal(t, "Title\n\nFirst para.\n\nSecond para.", got)
	})

	t.Run("ShouldHandleLargeDocuments", func(t *testing.T) {
		var src strings.Builder
		for i := 0; i < 20000; i++ {
			fmt.Fprintf(&src, "## Heading %d\n\nparagraph %d\n\n", i, i)
		}
		got := markdownToText([]byte(src.String()))
		assert.True(t, strings.HasPrefix(got, "Heading 0\n\nparagraph 0\n\nHeading 1"))
		assert.True(t, strings.HasSuffix(got, "Heading 19999\n\nparagraph 19999"))
		assert.NotContains(t, got, "\n\n\n")
	})
}
