package storage

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/welldanyogia/newsroom-auth/internal/repository"
)

func TestEncodeNDJSON(t *testing.T) {
	email := "reader@example.com"
	reason := "invalid_credentials"
	attempts := []repository.LoginAttempt{
		{
			ID:          uuid.New(),
			Email:       &email,
			IPAddress:   "203.0.113.10",
			Success:     true,
			AttemptedAt: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
		},
		{
			ID:            uuid.New(),
			IPAddress:     "203.0.113.11",
			Success:       false,
			FailureReason: &reason,
			AttemptedAt:   time.Date(2026, 5, 1, 10, 1, 0, 0, time.UTC),
		},
	}

	body, err := encodeNDJSON(attempts)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	lines := strings.Split(strings.TrimRight(string(body), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines, got %d", len(lines))
	}

	for i, line := range lines {
		var decoded repository.LoginAttempt
		if err := json.Unmarshal([]byte(line), &decoded); err != nil {
			t.Fatalf("Line %d is not valid JSON: %v", i, err)
		}
		if decoded.ID != attempts[i].ID {
			t.Errorf("Line %d: expected ID %s, got %s", i, attempts[i].ID, decoded.ID)
		}
		if decoded.IPAddress != attempts[i].IPAddress {
			t.Errorf("Line %d: expected IP %s, got %s", i, attempts[i].IPAddress, decoded.IPAddress)
		}
	}

	// Nullable fields are omitted rather than serialized as null
	if strings.Contains(lines[1], `"email"`) {
		t.Errorf("Expected second line to omit email, got %s", lines[1])
	}
	if !bytes.Contains(body, []byte(`"failure_reason":"invalid_credentials"`)) {
		t.Errorf("Expected failure_reason in output")
	}
}

func TestObjectKey(t *testing.T) {
	now := time.Date(2026, 3, 7, 23, 59, 0, 0, time.UTC)
	key := objectKey(now)

	if !strings.HasPrefix(key, "attempts/2026/03/07/") {
		t.Errorf("Expected date-partitioned prefix, got %s", key)
	}
	if !strings.HasSuffix(key, ".ndjson") {
		t.Errorf("Expected .ndjson suffix, got %s", key)
	}

	// Each run produces a distinct key
	if objectKey(now) == key {
		t.Errorf("Expected unique keys per call")
	}
}
