package callbacks

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestService_ScheduleRequiresPhone(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	if _, err := svc.Schedule(context.Background(), Intent{Date: "tomorrow"}); !errors.Is(err, ErrInvalidIntent) {
		t.Fatalf("expected ErrInvalidIntent, got %v", err)
	}
}

func TestService_ScheduleFillsDefaults(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	fixed := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	svc.clock = func() time.Time { return fixed }

	in, err := svc.Schedule(context.Background(), Intent{PhoneNumber: "+15551234567", Time: "3pm", RoomID: "R1"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if in.ID == "" || !in.RequestedAt.Equal(fixed) {
		t.Fatalf("expected id and requested_at, got %+v", in)
	}

	got, err := svc.ForPhone(context.Background(), "+15551234567")
	if err != nil || len(got) != 1 || got[0].Time != "3pm" {
		t.Fatalf("unexpected listing %+v %v", got, err)
	}
	if len(repo.All()) != 1 {
		t.Fatalf("expected one stored intent")
	}
}

func TestPostgresRepo_NilDB(t *testing.T) {
	r := NewPostgresRepo(nil)
	if err := r.Save(context.Background(), Intent{PhoneNumber: "+1"}); err == nil {
		t.Fatalf("expected error")
	}
	if err := r.Migrate(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
}
