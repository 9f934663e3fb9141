package main

import (
	"strings"
	"testing"
)

func TestLoadEmbeddedFAQ(t *testing.T) {
	t.Parallel()

	faq, err := loadFAQ(faqRaw)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	items := faq.Search("")
	if len(items) != 20 {
		t.Fatalf("items = %d, want 20", len(items))
	}
	for i, item := range items {
		if item.ID != i+1 || item.Question == "" || item.Answer == "" {
			t.Fatalf("bad item %d: %+v", i, item)
		}
	}
}

func TestFAQSearchIgnoresCase(t *testing.T) {
	t.Parallel()

	faq, err := loadFAQ([]byte(`
- id: 1
  question: 'How do I use the REPL?'
  answer: 'Open the REPL tab.'
- id: 2
  question: 'Serial ports?'
  answer: 'Press **Refresh** to list the repl-capable ports.'
- id: 3
  question: 'Upload limit'
  answer: '3MB'
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	var ids []int
	for _, item := range faq.Search("  RePL ") {
		ids = append(ids, item.ID)
	}
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 2 {
		t.Fatalf("ids = %v, want [1 2]", ids)
	}
	if got := faq.Search("nothing like this"); len(got) != 0 {
		t.Fatalf("unexpected match %v", got)
	}
}

func TestFAQRenderSanitizesMarkdown(t *testing.T) {
	t.Parallel()

	faq, err := loadFAQ([]byte(`
- id: 1
  question: 'Formatting <b>question</b>'
  answer: 'Use **bold** text.<script>alert(1)</script>'
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	page, err := faq.Render("")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	html := string(page)
	if !strings.Contains(html, "<strong>bold</strong>") {
		t.Errorf("markdown not rendered:\n%s", html)
	}
	if strings.Contains(html, "<script>") {
		t.Errorf("script not removed:\n%s", html)
	}
	if !strings.Contains(html, "Formatting &lt;b&gt;question&lt;/b&gt;") {
		t.Errorf("question not escaped:\n%s", html)
	}
}
