package models

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestID_UnmarshalStringAndNumber(t *testing.T) {
	var v struct {
		A ID `json:"a"`
		B ID `json:"b"`
		C ID `json:"c"`
	}
	if err := json.Unmarshal([]byte(`{"a":"p-1","b":42,"c":null}`), &v); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if v.A != "p-1" || v.B != "42" || v.C != "" {
		t.Errorf("unexpected ids: %+v", v)
	}
}

func TestID_RejectsObjects(t *testing.T) {
	var id ID
	if err := json.Unmarshal([]byte(`{"x":1}`), &id); err == nil {
		t.Error("expected error for object id")
	}
}

func TestPage_Validate(t *testing.T) {
	var missing Page[Terrain]
	if err := json.Unmarshal([]byte(`{"total":0}`), &missing); err != nil {
		t.Fatal(err)
	}
	if err := missing.Validate(); !errors.Is(err, ErrInvalidShape) {
		t.Errorf("expected ErrInvalidShape for missing items, got %v", err)
	}

	var badItem Page[Terrain]
	if err := json.Unmarshal([]byte(`{"items":[{"name":"no id"}],"total":1}`), &badItem); err != nil {
		t.Fatal(err)
	}
	if err := badItem.Validate(); !errors.Is(err, ErrInvalidShape) {
		t.Errorf("expected ErrInvalidShape for item without id, got %v", err)
	}

	var ok Page[Terrain]
	if err := json.Unmarshal([]byte(`{"items":[{"id":"t1"}],"total":1,"page":1,"size":50,"pages":1}`), &ok); err != nil {
		t.Fatal(err)
	}
	if err := ok.Validate(); err != nil {
		t.Errorf("expected valid page, got %v", err)
	}
}

func TestList_Validate(t *testing.T) {
	var l List[Player]
	if err := json.Unmarshal([]byte(`null`), &l); err != nil {
		t.Fatal(err)
	}
	if err := l.Validate(); !errors.Is(err, ErrInvalidShape) {
		t.Errorf("expected ErrInvalidShape for null list, got %v", err)
	}

	l = nil
	if err := json.Unmarshal([]byte(`[{"id":1,"name":"Ana"}]`), &l); err != nil {
		t.Fatal(err)
	}
	if err := l.Validate(); err != nil {
		t.Errorf("expected valid list, got %v", err)
	}
	if l[0].ID != "1" {
		t.Errorf("expected numeric id decoded as \"1\", got %q", l[0].ID)
	}
}
