package ingest

import (
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Page 为单页文本，Number 从 1 开始
type Page struct {
	Number  int
	Text    string
	Section string
}

// ExtractPages 逐页提取纯文本，空白页跳过；单页解析失败不影响其他页
func ExtractPages(path string) ([]Page, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat pdf: %w", err)
	}

	reader, err := pdf.NewReader(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}

	total := reader.NumPage()
	pages := make([]Page, 0, total)
	detector := NewSectionDetector()
	for i := 1; i <= total; i++ {
		p := reader.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		pages = append(pages, Page{
			Number:  i,
			Text:    text,
			Section: detector.Detect(text, i-1),
		})
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("no extractable text in %s", path)
	}
	return pages, nil
}

// GuessTitle 取首页第一行足够长的文本作为标题
func GuessTitle(pages []Page) string {
	if len(pages) == 0 {
		return ""
	}
	for _, line := range strings.Split(pages[0].Text, "\n") {
		line = strings.TrimSpace(line)
		if len(line) >= 8 && len(line) <= 200 {
			return line
		}
	}
	return ""
}
