package chunking

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/unidoc/unioffice/document"
	"github.com/unidoc/unipdf/v3/extractor"
	pdfmodel "github.com/unidoc/unipdf/v3/model"

	"github.com/docuchat/backend-go/internal/models"
)

// PDFPages 逐页提取PDF文本
func PDFPages(data []byte) ([]models.Page, error) {
	pdfReader, err := pdfmodel.NewPdfReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}

	numPages, err := pdfReader.GetNumPages()
	if err != nil {
		return nil, fmt.Errorf("failed to get pdf page count: %w", err)
	}

	pages := make([]models.Page, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page, err := pdfReader.GetPage(i)
		if err != nil {
			continue
		}
		ex, err := extractor.New(page)
		if err != nil {
			continue
		}
		text, err := ex.ExtractText()
		if err != nil {
			continue
		}
		pages = append(pages, models.Page{
			PageNumber: i,
			Text:       text,
		})
	}
	return pages, nil
}

// DOCXText 提取Word文档全文
func DOCXText(data []byte) (string, error) {
	doc, err := document.Read(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open docx: %w", err)
	}
	defer doc.Close()

	var builder strings.Builder
	for _, para := range doc.Paragraphs() {
		for _, run := range para.Runs() {
			builder.WriteString(run.Text())
		}
		builder.WriteString("\n")
	}
	return builder.String(), nil
}

// SupportedTextExt 判断扩展名是否为纯文本类
func SupportedTextExt(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".txt" || ext == ".md" || ext == ".markdown"
}

// ExtractText 按扩展名分派提取文本，.pdf走PDFPages以保留页码
func ExtractText(data []byte, filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch {
	case ext == ".pdf":
		pages, err := PDFPages(data)
		if err != nil {
			return "", err
		}
		var builder strings.Builder
		for _, p := range pages {
			builder.WriteString(p.Text)
			builder.WriteString("\n")
		}
		return builder.String(), nil
	case ext == ".docx":
		return DOCXText(data)
	case ext == ".doc":
		return "", fmt.Errorf("legacy .doc format is not supported, use .docx")
	case SupportedTextExt(filename):
		return string(data), nil
	default:
		return "", fmt.Errorf("unsupported file format: %s", filename)
	}
}
