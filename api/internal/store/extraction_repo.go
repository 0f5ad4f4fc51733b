package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = sql.ErrNoRows

type ExtractionRepo struct {
	DB *sql.DB
	// MaxAge bounds how old a cached response may be for FindResponse. Zero means no limit.
	MaxAge time.Duration
}

func NewExtractionRepo(db *sql.DB, maxAge time.Duration) *ExtractionRepo {
	return &ExtractionRepo{DB: db, MaxAge: maxAge}
}

func (r *ExtractionRepo) Migrate(ctx context.Context) error { return Migrate(ctx, r.DB) }

// ExtractionRow is one processed invoice image.
type ExtractionRow struct {
	ID           uuid.UUID
	CreatedAt    time.Time
	FileName     string
	ImageHash    string
	Engine       string
	Model        string
	ResponseText string
	Document     json.RawMessage
	Clarity      string
	ResponseTime float64
}

// FindByHash returns the newest row for (image_hash, engine, model).
// When maxAge > 0 an older row counts as missing.
func (r *ExtractionRepo) FindByHash(ctx context.Context, imageHash, engine, model string, maxAge time.Duration) (*ExtractionRow, error) {
	const q = `
select id, created_at, file_name, image_hash, engine, model,
       response_text, document, clarity, response_time
from invoice_extractions
where image_hash = $1 and engine = $2 and model = $3
order by created_at desc
limit 1`
	var row ExtractionRow
	var doc []byte
	err := r.DB.QueryRowContext(ctx, q, imageHash, engine, model).Scan(
		&row.ID, &row.CreatedAt, &row.FileName, &row.ImageHash, &row.Engine, &row.Model,
		&row.ResponseText, &doc, &row.Clarity, &row.ResponseTime,
	)
	if err != nil {
		return nil, err
	}
	if maxAge > 0 && time.Since(row.CreatedAt) > maxAge {
		return nil, ErrNotFound
	}
	row.Document = doc
	return &row, nil
}

// FindResponse returns the raw model answer cached for the image, engine and model.
func (r *ExtractionRepo) FindResponse(ctx context.Context, imageHash, engine, model string) (string, error) {
	row, err := r.FindByHash(ctx, imageHash, engine, model, r.MaxAge)
	if err != nil {
		return "", err
	}
	if row.ResponseText == "" {
		return "", ErrNotFound
	}
	return row.ResponseText, nil
}

// Save stores the row, replacing an earlier one for the same image, engine and model.
func (r *ExtractionRepo) Save(ctx context.Context, row ExtractionRow) error {
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if len(row.Document) == 0 {
		row.Document = json.RawMessage(`{}`)
	}
	const q = `
insert into invoice_extractions (
  id, file_name, image_hash, engine, model,
  response_text, document, clarity, response_time
) values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
on conflict (image_hash, engine, model) do update
set file_name = excluded.file_name,
    response_text = excluded.response_text,
    document = excluded.document,
    clarity = excluded.clarity,
    response_time = excluded.response_time,
    created_at = now()`
	_, err := r.DB.ExecContext(ctx, q,
		row.ID, row.FileName, row.ImageHash, row.Engine, row.Model,
		row.ResponseText, []byte(row.Document), row.Clarity, row.ResponseTime,
	)
	return err
}

// PurgeOlderThan deletes rows older than the given age.
func (r *ExtractionRepo) PurgeOlderThan(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, errors.New("olderThan must be > 0")
	}
	cutoff := time.Now().Add(-olderThan)
	res, err := r.DB.ExecContext(ctx, `delete from invoice_extractions where created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
