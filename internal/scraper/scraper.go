// Package scraper собирает описание компании с ее сайта.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"virkum-respond/internal/domain"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"go.uber.org/zap"
)

const (
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 4 << 20
	chunkWords     = 800
	minTextLength  = 50
	userAgent      = "virkum-respond-scraper/1.0"
)

// ErrFetch страница недоступна.
var ErrFetch = errors.New("failed to fetch url")

// Ключевые слова ссылки на страницу "о компании".
var aboutKeywords = []string{"um", "about", "fyrirtaeki", "company", "info"}

// Теги, текст которых не относится к описанию.
var skippedTags = map[atom.Atom]bool{
	atom.Script: true,
	atom.Style:  true,
	atom.Nav:    true,
	atom.Footer: true,
	atom.Header: true,
}

// Result данные, собранные со страницы компании
type Result struct {
	URL         string   `json:"url"`
	CompanyName string   `json:"company_name"`
	Description string   `json:"company_description"`
	Keywords    string   `json:"keywords"`
	Favicon     string   `json:"favicon"`
	AboutURL    string   `json:"about_url"`
	CleanText   string   `json:"clean_text"`
	TextChunks  []string `json:"text_chunks"`
}

// Company превращает результат в компанию для сохранения.
func (r *Result) Company() domain.Company {
	return domain.Company{
		Name:        r.CompanyName,
		URL:         r.URL,
		Description: r.Description,
		Info:        r.CleanText,
	}
}

// Scraper загружает главную страницу и страницу "о компании".
type Scraper struct {
	client *http.Client
	logger *zap.Logger
}

// New создает Scraper. client == nil заменяется клиентом с таймаутом 10s.
func New(client *http.Client, logger *zap.Logger) *Scraper {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &Scraper{client: client, logger: logger.Named("scraper")}
}

// NormalizeURL добавляет https:// к адресу без схемы.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		return "https://" + raw
	}
	return raw
}

// Scrape собирает метаданные главной страницы и текст страницы "о компании".
// Ошибка загрузки страницы "о компании" не является ошибкой: используется описание или заголовок.
func (s *Scraper) Scrape(ctx context.Context, rawURL string) (*Result, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, domain.NewValidationError("url", "is required")
	}
	pageURL, err := url.Parse(NormalizeURL(rawURL))
	if err != nil || pageURL.Host == "" {
		return nil, domain.NewValidationError("url", "is not a valid url")
	}

	doc, err := s.fetch(ctx, pageURL.String())
	if err != nil {
		return nil, err
	}

	res := &Result{
		URL:         pageURL.String(),
		CompanyName: strings.TrimSpace(textOf(findFirst(doc, atom.Title))),
		Description: metaContent(doc, "description"),
		Keywords:    metaContent(doc, "keywords"),
		Favicon:     favicon(pageURL, doc),
	}

	res.AboutURL = findAboutPage(pageURL, doc)
	aboutDoc, err := s.fetch(ctx, res.AboutURL)
	if err != nil {
		s.logger.Warn("About page fetch failed", zap.String("url", res.AboutURL), zap.Error(err))
	} else {
		res.CleanText = cleanText(aboutDoc)
		res.TextChunks = chunkText(res.CleanText, chunkWords)
	}

	if len(res.CleanText) < minTextLength {
		res.CleanText = res.Description
		if res.CleanText == "" {
			res.CleanText = res.CompanyName
		}
		res.TextChunks = []string{res.CleanText}
	}

	s.logger.Info("Company page scraped",
		zap.String("url", res.URL),
		zap.String("aboutURL", res.AboutURL),
		zap.Int("chunks", len(res.TextChunks)),
	)
	return res, nil
}

func (s *Scraper) fetch(ctx context.Context, pageURL string) (*html.Node, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s returned status %d", ErrFetch, pageURL, resp.StatusCode)
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", pageURL, err)
	}
	return doc, nil
}

// findAboutPage возвращает первую ссылку, похожую на страницу "о компании", иначе base.
func findAboutPage(base *url.URL, doc *html.Node) string {
	for n := range doc.Descendants() {
		if n.Type != html.ElementNode || n.DataAtom != atom.A {
			continue
		}
		href, ok := attr(n, "href")
		if !ok {
			continue
		}
		lowerHref := strings.ToLower(href)
		text := strings.ToLower(textOf(n))
		for _, k := range aboutKeywords {
			if strings.Contains(lowerHref, k) || strings.Contains(text, k) {
				if resolved, err := base.Parse(href); err == nil {
					return resolved.String()
				}
			}
		}
	}
	return base.String()
}

// cleanText текст документа без служебных блоков, пробелы схлопнуты.
func cleanText(doc *html.Node) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skippedTags[n.DataAtom] {
			return
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

// chunkText режет текст на куски по maxWords слов. Куски не длиннее 50 символов отбрасываются.
func chunkText(text string, maxWords int) []string {
	words := strings.Fields(text)
	var chunks []string
	for i := 0; i < len(words); i += maxWords {
		chunk := strings.Join(words[i:min(i+maxWords, len(words))], " ")
		if len(chunk) > minTextLength {
			chunks = append(chunks, chunk)
		}
	}
	return chunks
}

func metaContent(doc *html.Node, name string) string {
	for n := range doc.Descendants() {
		if n.Type != html.ElementNode || n.DataAtom != atom.Meta {
			continue
		}
		if v, _ := attr(n, "name"); strings.EqualFold(v, name) {
			content, _ := attr(n, "content")
			return strings.TrimSpace(content)
		}
	}
	return ""
}

func favicon(base *url.URL, doc *html.Node) string {
	for n := range doc.Descendants() {
		if n.Type != html.ElementNode || n.DataAtom != atom.Link {
			continue
		}
		rel, _ := attr(n, "rel")
		if !strings.Contains(strings.ToLower(rel), "icon") {
			continue
		}
		href, ok := attr(n, "href")
		if !ok || href == "" {
			continue
		}
		if resolved, err := base.Parse(href); err == nil {
			return resolved.String()
		}
	}
	return ""
}

func findFirst(doc *html.Node, a atom.Atom) *html.Node {
	for n := range doc.Descendants() {
		if n.Type == html.ElementNode && n.DataAtom == a {
			return n
		}
	}
	return nil
}

func textOf(n *html.Node) string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	for d := range n.Descendants() {
		if d.Type == html.TextNode {
			b.WriteString(d.Data)
		}
	}
	return b.String()
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}
