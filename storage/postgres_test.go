package storage

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"idx_portal/models"
)

func TestUpdateSearchStatement_KeepsUnparsedSchedule(t *testing.T) {
	search := &models.SavedSearch{ID: uuid.New(), Name: "Corrupt schedule"}

	query, args, err := updateSearchStatement(search)
	if err != nil {
		t.Fatalf("build update: %v", err)
	}
	if strings.Contains(query, "notification_") {
		t.Fatalf("schedule columns must be left alone when the schedule is unknown:\n%s", query)
	}
	if len(args) != 7 || strings.Contains(query, "$8") {
		t.Fatalf("unexpected placeholders: %d args\n%s", len(args), query)
	}
}

func TestUpdateSearchStatement_WritesSchedule(t *testing.T) {
	search := &models.SavedSearch{
		ID:       uuid.New(),
		Name:     "Weekly",
		Schedule: models.Weekly{At: models.TimeOfDay{Hour: 9}, Days: []time.Weekday{time.Monday}},
	}

	query, args, err := updateSearchStatement(search)
	if err != nil {
		t.Fatalf("build update: %v", err)
	}
	if !strings.Contains(query, "notification_frequency = $8") || len(args) != 10 {
		t.Fatalf("schedule columns missing: %d args\n%s", len(args), query)
	}
	if args[7] != "weekly" {
		t.Fatalf("expected weekly frequency, got %v", args[7])
	}
	if at, ok := args[8].(*string); !ok || at == nil || *at != "09:00" {
		t.Fatalf("unexpected notification time %v", args[8])
	}
}
