package testfixtures

import (
	"context"
	"testing"
	"time"

	"github.com/example/practice-scheduler/internal/application"
)

func TestServiceFactoryNewHoldService(t *testing.T) {
	harness := NewSQLiteHarness(t)
	ctx := context.Background()

	org := NewOrganizationFixture()
	if err := harness.Organizations.CreateOrganization(ctx, org); err != nil {
		t.Fatalf("CreateOrganization returned error: %v", err)
	}
	staff := NewStaffFixture(org.ID)
	if err := harness.Staff.CreateStaff(ctx, staff); err != nil {
		t.Fatalf("CreateStaff returned error: %v", err)
	}

	factory := NewServiceFactory()
	svc := factory.NewHoldService(HarnessStores(harness), nil, 0)

	staffID := staff.ID
	hold, err := svc.CreateHold(ctx, org.ID, application.CreateHoldParams{
		Principal: application.Principal{UserID: "user-1"},
		StaffID:   &staffID,
		Date:      "2025-06-02",
		StartTime: "09:00",
		EndTime:   "10:00",
	})
	if err != nil {
		t.Fatalf("CreateHold returned error: %v", err)
	}

	if hold.ID != "id-1" {
		t.Fatalf("expected generated ID id-1, got %q", hold.ID)
	}
	expectedExpiry := factory.Clock.Current().Add(10 * time.Minute)
	if !hold.ExpiresAt.Equal(expectedExpiry) {
		t.Fatalf("expected expiry %v, got %v", expectedExpiry, hold.ExpiresAt)
	}

	fetched, err := svc.GetHold(ctx, org.ID, hold.ID)
	if err != nil {
		t.Fatalf("GetHold returned error: %v", err)
	}
	if fetched.StaffID == nil || *fetched.StaffID != staff.ID {
		t.Fatalf("expected staff %q on hold, got %+v", staff.ID, fetched.StaffID)
	}
}
