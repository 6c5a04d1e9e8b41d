package storage

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestWhereBuildsNumberedPredicates(t *testing.T) {
	w := &where{}
	if got := w.String(); got != "" {
		t.Fatalf("expected empty clause, got %q", got)
	}
	w.add("a.doctor_id = ?", "d-1")
	w.add("(name ILIKE ? OR email ILIKE ?)", "%x%")
	want := " WHERE a.doctor_id = $1 AND (name ILIKE $2 OR email ILIKE $2)"
	if got := w.String(); got != want {
		t.Fatalf("unexpected clause:\n got %q\nwant %q", got, want)
	}
	if got := w.page(20, 40); got != " LIMIT $3 OFFSET $4" {
		t.Fatalf("unexpected page clause %q", got)
	}
	if len(w.args) != 4 || w.args[2] != 20 || w.args[3] != 40 {
		t.Fatalf("unexpected args %v", w.args)
	}
}

func TestLikePatternEscapes(t *testing.T) {
	if got := likePattern(" 50%_off "); got != `%50\%\_off%` {
		t.Fatalf("unexpected pattern %q", got)
	}
}

func TestMissingMapsNotFound(t *testing.T) {
	sentinel := errors.New("gone")
	if err := missing(pgx.ErrNoRows, sentinel); err != sentinel {
		t.Fatalf("expected sentinel for no rows, got %v", err)
	}
	if err := missing(&pgconn.PgError{Code: "22P02"}, sentinel); err != sentinel {
		t.Fatalf("expected sentinel for malformed id, got %v", err)
	}
	other := errors.New("boom")
	if err := missing(other, sentinel); err != other {
		t.Fatalf("expected passthrough, got %v", err)
	}
	if missing(nil, sentinel) != nil {
		t.Fatal("nil must stay nil")
	}
}

func TestNullable(t *testing.T) {
	if nullable("") != nil {
		t.Fatal("empty id must be NULL")
	}
	if nullable("x") != "x" {
		t.Fatal("id must pass through")
	}
}
