// Package book describes the catalog metadata resolved for an ISBN.
package book

import (
	"errors"
	"time"
)

var ErrBookNotFound = errors.New("book not found")

type Book struct {
	ISBN13        string
	Title         string
	Subtitle      string
	Authors       []string
	Publisher     string
	PublishedDate string
	PageCount     int
	CoverURL      string
	FetchedAt     time.Time
}
