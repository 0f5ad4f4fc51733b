package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

type AnswerRepo struct{ DB *sql.DB }

func NewAnswerRepo(db *sql.DB) *AnswerRepo { return &AnswerRepo{DB: db} }

// Find returns a cached answer to question for (imageHash, engine, model).
// If maxAge > 0 and the answer is older, sql.ErrNoRows is returned so the model is asked again.
func (r *AnswerRepo) Find(ctx context.Context, imageHash, engine, model, question string, maxAge time.Duration) (string, error) {
	const q = `select answer, created_at
	           from invoice_answers
	           where image_hash=$1 and engine=$2 and model=$3 and question=$4`
	var (
		answer string
		ts     time.Time
	)
	if err := r.DB.QueryRowContext(ctx, q, imageHash, engine, model, question).Scan(&answer, &ts); err != nil {
		return "", err
	}
	if maxAge > 0 && time.Since(ts) > maxAge {
		return "", sql.ErrNoRows
	}
	return answer, nil
}

// Upsert stores an answer. PK: (image_hash, engine, model, question).
func (r *AnswerRepo) Upsert(ctx context.Context, imageHash, engine, model, question, answer, savedKey string) error {
	const q = `
insert into invoice_answers(id, image_hash, engine, model, question, answer, saved_key)
values ($1,$2,$3,$4,$5,$6,$7)
on conflict (image_hash, engine, model, question)
do update set answer=excluded.answer, saved_key=excluded.saved_key, created_at=now()`
	_, err := r.DB.ExecContext(ctx, q, uuid.New(), imageHash, engine, model, question, answer, savedKey)
	return err
}
