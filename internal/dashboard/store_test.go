package dashboard

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kjstillabower/mintemp-dashboard/internal/observability"
)

func TestStore_CreateGetDelete(t *testing.T) {
	st := NewStore(Deps{}, time.Minute, time.Minute)
	before := testutil.ToFloat64(observability.SessionsActive)

	s := st.Create()
	if s.ID == "" {
		t.Fatal("Create() returned empty ID")
	}
	got, ok := st.Get(s.ID)
	if !ok || got != s {
		t.Fatalf("Get(%s) = (%v, %v), want created session", s.ID, got, ok)
	}
	if d := testutil.ToFloat64(observability.SessionsActive) - before; d != 1 {
		t.Errorf("sessions gauge delta = %v, want 1", d)
	}

	if !st.Delete(s.ID) {
		t.Error("Delete() = false, want true")
	}
	if st.Delete(s.ID) {
		t.Error("second Delete() = true, want false")
	}
	if _, ok := st.Get(s.ID); ok {
		t.Error("Get() after Delete ok = true")
	}
	if d := testutil.ToFloat64(observability.SessionsActive) - before; d != 0 {
		t.Errorf("sessions gauge delta = %v, want 0 after delete", d)
	}
}

func TestStore_Expiry(t *testing.T) {
	st := NewStore(Deps{}, 10*time.Millisecond, time.Hour)
	s := st.Create()
	time.Sleep(20 * time.Millisecond)
	if _, ok := st.Get(s.ID); ok {
		t.Error("Get() on expired session ok = true")
	}
}

func TestStore_SessionsIsolated(t *testing.T) {
	st := NewStore(Deps{}, time.Minute, time.Minute)
	a, b := st.Create(), st.Create()
	if a.ID == b.ID {
		t.Fatal("sessions share an ID")
	}
	if st.Len() != 2 {
		t.Errorf("Len() = %d, want 2", st.Len())
	}
}
