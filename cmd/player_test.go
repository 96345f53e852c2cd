// ABOUTME: Tests for the player commands
// ABOUTME: Shows the resolved player against an httptest backend

package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestPlayerShow(t *testing.T) {
	newBackend(t)
	login(t)

	var buf bytes.Buffer
	if code := runPlayerShow(context.Background(), &buf); code != exitOK {
		t.Fatalf("expected exit 0, got %d: %s", code, buf.String())
	}
	for _, want := range []string{"Player:     Fazendeira (7)", "Coins:      250", "Character:  yes", "Harvests:   4"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("expected output to contain %q, got %q", want, buf.String())
		}
	}
}

func TestPlayerShow_JSON(t *testing.T) {
	newBackend(t)
	login(t)
	jsonOutput = true

	var buf bytes.Buffer
	if code := runPlayerShow(context.Background(), &buf); code != exitOK {
		t.Fatalf("expected exit 0, got %d: %s", code, buf.String())
	}
	var out playerOutput
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
	}
	if out.Player == nil || out.Player.Level != 3 || !out.HasCharacter {
		t.Errorf("unexpected output %+v", out)
	}
}

func TestPlayerShow_RequiresLogin(t *testing.T) {
	newBackend(t)

	var buf bytes.Buffer
	if code := runPlayerShow(context.Background(), &buf); code != exitRejected {
		t.Errorf("expected exit 1, got %d", code)
	}
}
