package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"idx_portal/models"
)

func TestDispatch_ShadowIndependentOfClientPreference(t *testing.T) {
	notifier := &fakeNotifier{}
	d := NewDispatcher(notifier, "admin@example.com")

	client := activeClient()
	client.NotificationPreferences.Email = false
	search := &models.SavedSearch{ID: uuid.New(), Name: "Shadowed", AdminShadowNotification: true}
	listings := []models.Listing{activeListing("A", "Windsor", 1, baseTime)}

	res, err := d.Dispatch(context.Background(), search, &client, listings)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if res.ClientSent {
		t.Fatalf("client opted out, clientSent should be false")
	}
	if !res.ShadowSent {
		t.Fatalf("shadowSent should be true")
	}
	if len(notifier.sent) != 1 || notifier.sent[0].to != "admin@example.com" {
		t.Fatalf("expected one shadow digest to admin, got %+v", notifier.sent)
	}
}

func TestDispatch_ClientFailureDoesNotBlockShadow(t *testing.T) {
	notifier := &fakeNotifier{failAll: true}
	d := NewDispatcher(notifier, "admin@example.com")

	client := activeClient()
	search := &models.SavedSearch{ID: uuid.New(), AdminShadowNotification: true}
	listings := []models.Listing{activeListing("A", "Windsor", 1, baseTime)}

	res, err := d.Dispatch(context.Background(), search, &client, listings)
	if err == nil {
		t.Fatalf("expected client send error")
	}
	if res.ClientSent || !res.ShadowSent {
		t.Fatalf("expected only shadow sent, got %+v", res)
	}
}

func TestDispatch_RecoversNotifierPanic(t *testing.T) {
	search := &models.SavedSearch{ID: uuid.New()}
	notifier := &fakeNotifier{panicFor: map[uuid.UUID]bool{search.ID: true}}
	d := NewDispatcher(notifier, "")

	client := activeClient()
	res, err := d.Dispatch(context.Background(), search, &client, []models.Listing{activeListing("A", "Windsor", 1, baseTime)})
	if err == nil {
		t.Fatalf("expected panic converted to error")
	}
	if res.Any() {
		t.Fatalf("nothing should be reported sent, got %+v", res)
	}
}

func TestDispatch_ShadowWithoutAdminAddress(t *testing.T) {
	d := NewDispatcher(&fakeNotifier{}, "")
	client := activeClient()
	search := &models.SavedSearch{ID: uuid.New(), AdminShadowNotification: true}

	res, err := d.Dispatch(context.Background(), search, &client, []models.Listing{activeListing("A", "Windsor", 1, baseTime)})
	if !errors.Is(err, ErrNoAdminRecipient) {
		t.Fatalf("expected ErrNoAdminRecipient, got %v", err)
	}
	if !res.ClientSent {
		t.Fatalf("client digest should still go out")
	}
}

func TestDispatch_EmptyListingsSendsNothing(t *testing.T) {
	notifier := &fakeNotifier{}
	d := NewDispatcher(notifier, "admin@example.com")
	client := activeClient()

	res, err := d.Dispatch(context.Background(), &models.SavedSearch{AdminShadowNotification: true}, &client, nil)
	if err != nil || res.Any() || notifier.count() != 0 {
		t.Fatalf("expected no sends, got %+v err=%v", res, err)
	}
}
