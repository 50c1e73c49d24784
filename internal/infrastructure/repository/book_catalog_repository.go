package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mohammadpnp/book-import/internal/domain/book"
)

var pg = goqu.Dialect("postgres")

var stagingColumns = []string{
	"job_id", "row_index", "isbn13", "title", "subtitle", "authors",
	"publisher", "published_date", "page_count", "cover_url", "fetched_at",
}

// BookUpsertResult counts rows written by one catalog batch.
type BookUpsertResult struct {
	Inserted int64
	Updated  int64
}

// BookCatalogRepository writes resolved metadata into the books table. Each
// batch is copied into stg_books and merged with one upsert so a chunk costs
// a single round of statements regardless of its size.
type BookCatalogRepository struct {
	pool *pgxpool.Pool
}

func NewBookCatalogRepository(pool *pgxpool.Pool) *BookCatalogRepository {
	return &BookCatalogRepository{pool: pool}
}

func (r *BookCatalogRepository) SaveBooks(ctx context.Context, jobID string, books []book.Book) error {
	_, err := r.UpsertBooks(ctx, jobID, books)
	return err
}

func (r *BookCatalogRepository) UpsertBooks(ctx context.Context, jobID string, books []book.Book) (BookUpsertResult, error) {
	if len(books) == 0 {
		return BookUpsertResult{}, nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return BookUpsertResult{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rows := make([][]any, 0, len(books))
	for i, b := range books {
		authors := b.Authors
		if authors == nil {
			authors = []string{}
		}
		fetchedAt := b.FetchedAt
		if fetchedAt.IsZero() {
			fetchedAt = time.Now().UTC()
		}
		rows = append(rows, []any{
			jobID, int64(i), b.ISBN13, b.Title, b.Subtitle, authors,
			b.Publisher, b.PublishedDate, int32(b.PageCount), b.CoverURL, fetchedAt,
		})
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"stg_books"}, stagingColumns, pgx.CopyFromRows(rows)); err != nil {
		return BookUpsertResult{}, fmt.Errorf("copy books staging: %w", err)
	}

	result, err := upsertStagedBooks(ctx, tx, jobID)
	if err != nil {
		return BookUpsertResult{}, err
	}

	cleanupSQL, cleanupArgs, err := pg.Delete("stg_books").
		Where(goqu.C("job_id").Eq(jobID)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return BookUpsertResult{}, fmt.Errorf("build stg_books cleanup: %w", err)
	}
	if _, err := tx.Exec(ctx, cleanupSQL, cleanupArgs...); err != nil {
		return BookUpsertResult{}, fmt.Errorf("cleanup stg_books: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return BookUpsertResult{}, fmt.Errorf("commit book batch: %w", err)
	}
	return result, nil
}

func upsertStagedBooks(ctx context.Context, tx pgx.Tx, jobID string) (BookUpsertResult, error) {
	staged := pg.From("stg_books").
		Select(
			goqu.C("isbn13"), goqu.C("title"), goqu.C("subtitle"), goqu.C("authors"),
			goqu.C("publisher"), goqu.C("published_date"), goqu.C("page_count"),
			goqu.C("cover_url"), goqu.C("job_id"), goqu.C("fetched_at"),
			goqu.L("NOW()"), goqu.L("NOW()"),
		).
		Distinct("isbn13").
		Where(goqu.C("job_id").Eq(jobID)).
		Order(goqu.C("isbn13").Asc(), goqu.C("row_index").Desc())

	query, args, err := pg.Insert("books").
		Cols(
			"isbn13", "title", "subtitle", "authors", "publisher", "published_date",
			"page_count", "cover_url", "last_import_job_id", "fetched_at", "created_at", "updated_at",
		).
		FromQuery(staged).
		OnConflict(goqu.DoUpdate("isbn13", goqu.Record{
			"title":              goqu.L("EXCLUDED.title"),
			"subtitle":           goqu.L("EXCLUDED.subtitle"),
			"authors":            goqu.L("EXCLUDED.authors"),
			"publisher":          goqu.L("EXCLUDED.publisher"),
			"published_date":     goqu.L("EXCLUDED.published_date"),
			"page_count":         goqu.L("EXCLUDED.page_count"),
			"cover_url":          goqu.L("EXCLUDED.cover_url"),
			"last_import_job_id": goqu.L("EXCLUDED.last_import_job_id"),
			"fetched_at":         goqu.L("EXCLUDED.fetched_at"),
			"updated_at":         goqu.L("NOW()"),
		})).
		Returning(goqu.L("(xmax = 0)")).
		Prepared(true).
		ToSQL()
	if err != nil {
		return BookUpsertResult{}, fmt.Errorf("build books upsert: %w", err)
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return BookUpsertResult{}, fmt.Errorf("upsert books: %w", err)
	}
	defer rows.Close()

	var result BookUpsertResult
	for rows.Next() {
		var inserted bool
		if err := rows.Scan(&inserted); err != nil {
			return BookUpsertResult{}, err
		}
		if inserted {
			result.Inserted++
		} else {
			result.Updated++
		}
	}
	if err := rows.Err(); err != nil {
		return BookUpsertResult{}, err
	}
	return result, nil
}
