package store

import (
	"context"
	"database/sql"
	"fmt"
)

const schemaSQL = `
create table if not exists invoice_extractions (
  id            uuid primary key,
  created_at    timestamptz not null default now(),
  file_name     text not null,
  image_hash    text not null,
  engine        text not null,
  model         text not null,
  response_text text not null default '',
  document      jsonb not null,
  clarity       text not null default '',
  response_time double precision not null default 0,
  unique (image_hash, engine, model)
);

create table if not exists invoice_answers (
  id          uuid primary key,
  created_at  timestamptz not null default now(),
  image_hash  text not null,
  engine      text not null,
  model       text not null,
  question    text not null,
  answer      text not null,
  saved_key   text not null default '',
  unique (image_hash, engine, model, question)
);
`

// Migrate creates the tables if they do not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
