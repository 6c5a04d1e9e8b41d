package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

// NormalizeID trims id and lower-cases it to match how Postgres renders uuids.
func NormalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// Identifiable is implemented by every entity that can be referenced by id.
type Identifiable interface {
	RefID() string
}

// Ref is a reference to another entity: either a bare id or the populated entity.
// Which one is decided by the repository that loaded it; callers use ID() and Value()
// instead of inspecting the JSON shape.
type Ref[T Identifiable] struct {
	id  string
	val *T
}

func RefOf[T Identifiable](id string) Ref[T] {
	return Ref[T]{id: id}
}

func Populated[T Identifiable](v T) Ref[T] {
	return Ref[T]{id: v.RefID(), val: &v}
}

func (r Ref[T]) ID() string { return r.id }

func (r Ref[T]) IsZero() bool { return r.id == "" }

func (r Ref[T]) IsPopulated() bool { return r.val != nil }

func (r Ref[T]) Value() (T, bool) {
	if r.val == nil {
		var zero T
		return zero, false
	}
	return *r.val, true
}

func (r Ref[T]) MarshalJSON() ([]byte, error) {
	switch {
	case r.val != nil:
		return json.Marshal(r.val)
	case r.id == "":
		return []byte("null"), nil
	default:
		return json.Marshal(r.id)
	}
}

func (r *Ref[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*r = Ref[T]{}
		return nil
	}
	if b[0] == '"' {
		var id string
		if err := json.Unmarshal(b, &id); err != nil {
			return err
		}
		*r = RefOf[T](id)
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	if v.RefID() == "" {
		return errors.New("populated reference has no id")
	}
	*r = Populated(v)
	return nil
}

// RefIDs returns the ids of refs in order.
func RefIDs[T Identifiable](refs []Ref[T]) []string {
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		out = append(out, r.ID())
	}
	return out
}

func RefsOf[T Identifiable](ids []string) []Ref[T] {
	out := make([]Ref[T], 0, len(ids))
	for _, id := range ids {
		out = append(out, RefOf[T](id))
	}
	return out
}
