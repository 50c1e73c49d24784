// Package lookup resolves ISBNs to catalog metadata.
package lookup

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/mohammadpnp/book-import/internal/domain/book"
)

const DefaultOpenLibraryURL = "https://openlibrary.org"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type openLibraryName struct {
	Name string `json:"name"`
}

type openLibraryCover struct {
	Small  string `json:"small"`
	Medium string `json:"medium"`
	Large  string `json:"large"`
}

type openLibraryRecord struct {
	Title         string            `json:"title"`
	Subtitle      string            `json:"subtitle"`
	Authors       []openLibraryName `json:"authors"`
	Publishers    []openLibraryName `json:"publishers"`
	PublishDate   string            `json:"publish_date"`
	NumberOfPages int               `json:"number_of_pages"`
	Cover         *openLibraryCover `json:"cover"`
}

// OpenLibraryClient looks books up through the Open Library books API.
type OpenLibraryClient struct {
	baseURL    *url.URL
	httpClient *http.Client
	userAgent  string
	now        func() time.Time
}

func NewOpenLibraryClient(baseURL string, httpClient *http.Client) (*OpenLibraryClient, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = DefaultOpenLibraryURL
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid open library url: %q", baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &OpenLibraryClient{
		baseURL:    u,
		httpClient: httpClient,
		userAgent:  "book-import/1.0",
		now:        time.Now,
	}, nil
}

func (c *OpenLibraryClient) Lookup(ctx context.Context, isbn string) (book.Book, error) {
	bibKey := "ISBN:" + isbn

	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/api/books"
	u.RawQuery = url.Values{
		"bibkeys": {bibKey},
		"format":  {"json"},
		"jscmd":   {"data"},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return book.Book{}, fmt.Errorf("http request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return book.Book{}, fmt.Errorf("http do: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return book.Book{}, fmt.Errorf("http read: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return book.Book{}, book.ErrBookNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return book.Book{}, fmt.Errorf("open library status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var records map[string]openLibraryRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return book.Book{}, fmt.Errorf("json unmarshal response: %w", err)
	}
	record, ok := records[bibKey]
	if !ok || strings.TrimSpace(record.Title) == "" {
		return book.Book{}, book.ErrBookNotFound
	}

	return record.toBook(isbn, c.now().UTC()), nil
}

func (r openLibraryRecord) toBook(isbn string, fetchedAt time.Time) book.Book {
	b := book.Book{
		ISBN13:        isbn,
		Title:         strings.TrimSpace(r.Title),
		Subtitle:      strings.TrimSpace(r.Subtitle),
		Authors:       make([]string, 0, len(r.Authors)),
		PublishedDate: r.PublishDate,
		PageCount:     r.NumberOfPages,
		FetchedAt:     fetchedAt,
	}
	for _, a := range r.Authors {
		if name := strings.TrimSpace(a.Name); name != "" {
			b.Authors = append(b.Authors, name)
		}
	}
	if len(r.Publishers) > 0 {
		b.Publisher = strings.TrimSpace(r.Publishers[0].Name)
	}
	if r.Cover != nil {
		b.CoverURL = firstNonEmpty(r.Cover.Medium, r.Cover.Large, r.Cover.Small)
	}
	return b
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
