package parser

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/nguyenthenguyen/docx"
	"github.com/tealeg/xlsx"
	"github.com/tmc/langchaingo/schema"
	"github.com/xuri/excelize/v2"
)

var (
	docxParagraphRe = regexp.MustCompile(`(?s)<w:p[ >].*?</w:p>`)
	docxTextRe      = regexp.MustCompile(`(?s)<w:t(?: [^>]*)?>(.*?)</w:t>`)
	slideNameRe     = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)
	slideParagraph  = regexp.MustCompile(`(?s)<a:p>.*?</a:p>|<a:p/>`)
	slideTextRe     = regexp.MustCompile(`(?s)<a:t>(.*?)</a:t>`)
	xmlEntities     = strings.NewReplacer("&lt;", "<", "&gt;", ">", "&quot;", `"`, "&apos;", "'", "&amp;", "&")
)

// DOCX has no page numbers, the whole body becomes page 1
func loadDOCXPages(_ context.Context, filePath string) ([]schema.Document, error) {
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	paragraphs := extractDOCXParagraphs(r.Editable().GetContent())
	return []schema.Document{pageDocument(strings.Join(paragraphs, "\n\n"), defaultPageNumber, 1)}, nil
}

func extractDOCXParagraphs(xmlContent string) []string {
	var paragraphs []string
	for _, p := range docxParagraphRe.FindAllString(xmlContent, -1) {
		var text strings.Builder
		for _, m := range docxTextRe.FindAllStringSubmatch(p, -1) {
			text.WriteString(xmlEntities.Replace(m[1]))
		}
		if strings.TrimSpace(text.String()) != "" {
			paragraphs = append(paragraphs, text.String())
		}
	}
	return paragraphs
}

// every sheet becomes one page, numbered in workbook order
func loadXLSXPages(_ context.Context, filePath string) ([]schema.Document, error) {
	f, err := xlsx.OpenFile(filePath)
	if err != nil {
		return nil, err
	}

	pages := make([]schema.Document, 0, len(f.Sheets))
	for sheetNum, sheet := range f.Sheets {
		rows := make([][]string, 0, len(sheet.Rows))
		for _, row := range sheet.Rows {
			if row == nil {
				continue
			}
			cells := make([]string, 0, len(row.Cells))
			for _, cell := range row.Cells {
				cells = append(cells, cell.String())
			}
			rows = append(rows, cells)
		}
		pages = append(pages, pageDocument(sheetText(sheet.Name, rows), sheetNum+1, len(f.Sheets)))
	}
	return pages, nil
}

// macro-enabled workbooks and templates go through excelize
func loadWorkbookPages(_ context.Context, filePath string) ([]schema.Document, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	pages := make([]schema.Document, 0, len(sheets))
	for sheetNum, sheetName := range sheets {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			return nil, fmt.Errorf("sheet %s: %w", sheetName, err)
		}
		pages = append(pages, pageDocument(sheetText(sheetName, rows), sheetNum+1, len(sheets)))
	}
	return pages, nil
}

func sheetText(name string, rows [][]string) string {
	var text strings.Builder
	text.WriteString(fmt.Sprintf("## Sheet: %s\n", name))
	for _, row := range rows {
		text.WriteString(strings.Join(row, "\t"))
		text.WriteString("\n")
	}
	return text.String()
}

// slides are ordered by the number in their part name, slide10 after slide9
func loadPPTXPages(_ context.Context, filePath string) ([]schema.Document, error) {
	r, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	type slide struct {
		num  int
		file *zip.File
	}
	var slides []slide
	for _, f := range r.File {
		m := slideNameRe.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		num, _ := strconv.Atoi(m[1])
		slides = append(slides, slide{num: num, file: f})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	pages := make([]schema.Document, 0, len(slides))
	for i, s := range slides {
		rc, err := s.file.Open()
		if err != nil {
			return nil, fmt.Errorf("slide %d: %w", s.num, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("slide %d: %w", s.num, err)
		}
		pages = append(pages, pageDocument(slideText(string(data)), i+1, len(slides)))
	}
	return pages, nil
}

func slideText(xmlContent string) string {
	var lines []string
	for _, p := range slideParagraph.FindAllString(xmlContent, -1) {
		var line strings.Builder
		for _, m := range slideTextRe.FindAllStringSubmatch(p, -1) {
			line.WriteString(xmlEntities.Replace(m[1]))
		}
		if strings.TrimSpace(line.String()) != "" {
			lines = append(lines, line.String())
		}
	}
	return strings.Join(lines, "\n")
}
