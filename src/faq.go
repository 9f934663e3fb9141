package main

import (
	"bytes"
	_ "embed"
	"html/template"
	"strings"
	"sync"

	"github.com/gomarkdown/markdown"
	"github.com/microcosm-cc/bluemonday"
	"gopkg.in/yaml.v3"
)

//go:embed faq.yaml
var faqRaw []byte

//go:embed faq.html
var faqPageRaw string

// вопрос и ответ из раздела FAQ
type FAQItem struct {
	ID       int    `json:"id" yaml:"id"`
	Question string `json:"question" yaml:"question"`
	Answer   string `json:"answer" yaml:"answer"`
}

// список вопросов и шаблон страницы
type FAQ struct {
	items []FAQItem
	page  *template.Template
}

var (
	answerPolicyOnce sync.Once
	answerPolicy     *bluemonday.Policy
)

func loadFAQ(raw []byte) (*FAQ, error) {
	var items []FAQItem
	if err := yaml.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	page, err := template.New("faq").Parse(faqPageRaw)
	if err != nil {
		return nil, err
	}
	return &FAQ{items: items, page: page}, nil
}

// вопросы, в тексте которых встречается query; регистр не учитывается, пустой запрос возвращает все
func (f *FAQ) Search(query string) []FAQItem {
	query = strings.ToLower(strings.TrimSpace(query))
	found := make([]FAQItem, 0, len(f.items))
	for _, item := range f.items {
		if query == "" ||
			strings.Contains(strings.ToLower(item.Question), query) ||
			strings.Contains(strings.ToLower(item.Answer), query) {
			found = append(found, item)
		}
	}
	return found
}

type faqPageItem struct {
	ID       int
	Question string
	Answer   template.HTML
}

// отрисовка страницы FAQ, ответы записаны в markdown
func (f *FAQ) Render(query string) ([]byte, error) {
	items := f.Search(query)
	pageItems := make([]faqPageItem, 0, len(items))
	for _, item := range items {
		pageItems = append(pageItems, faqPageItem{
			ID:       item.ID,
			Question: item.Question,
			Answer:   renderAnswer(item.Answer),
		})
	}
	var buf bytes.Buffer
	err := f.page.Execute(&buf, struct {
		Query string
		Items []faqPageItem
	}{query, pageItems})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func renderAnswer(answer string) template.HTML {
	html := markdown.ToHTML([]byte(answer), nil, nil)
	return template.HTML(answerSanitizer().SanitizeBytes(html))
}

func answerSanitizer() *bluemonday.Policy {
	answerPolicyOnce.Do(func() {
		answerPolicy = bluemonday.UGCPolicy()
	})
	return answerPolicy
}
