package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/acbmarket/feedctl/internal/clock"
	"github.com/acbmarket/feedctl/internal/verify"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	id1 := s1.Instance().ID
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
	if s2.Instance().ID != id1 {
		t.Errorf("instance id changed across reopen: %q -> %q", id1, s2.Instance().ID)
	}
}

func TestMigrationsOrdered(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("expected 2 applied migrations, got %v", versions)
	}
	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migrations not in ascending order: %v", versions)
			break
		}
	}
}

func TestInstanceID(t *testing.T) {
	a := openTestStore(t)
	b := openTestStore(t)

	if a.Instance().ID == "" {
		t.Fatal("expected an instance id")
	}
	if a.Instance().ID == b.Instance().ID {
		t.Error("separate databases should get separate instance ids")
	}
	if a.Instance().CreatedAt.IsZero() {
		t.Error("expected created_at")
	}
}

func TestVerificationRecordRoundTrip(t *testing.T) {
	s := openTestStore(t)
	granted := time.Date(2026, 3, 1, 9, 0, 0, 123_000_000, time.UTC)

	if _, err := s.GetRecord("purchase"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, found, err := s.LoadRecord("purchase"); err != nil || found {
		t.Fatalf("LoadRecord on empty store: found=%v err=%v", found, err)
	}

	if err := s.SaveRecord(verify.Record{Action: "purchase", GrantedAt: granted, TTL: 15 * time.Minute}); err != nil {
		t.Fatalf("SaveRecord: %v", err)
	}
	rec, found, err := s.LoadRecord("purchase")
	if err != nil || !found {
		t.Fatalf("LoadRecord: found=%v err=%v", found, err)
	}
	if !rec.GrantedAt.Equal(granted) || rec.TTL != 15*time.Minute || rec.Action != "purchase" {
		t.Errorf("unexpected record: %+v", rec)
	}

	later := granted.Add(time.Minute)
	s.SaveRecord(verify.Record{Action: "purchase", GrantedAt: later, TTL: 15 * time.Minute})
	rec, _, _ = s.LoadRecord("purchase")
	if !rec.GrantedAt.Equal(later) {
		t.Errorf("record not overwritten: %+v", rec)
	}
	if n, _ := s.CountRecords(); n != 1 {
		t.Errorf("expected one record, got %d", n)
	}

	if err := s.DeleteRecord("purchase"); err != nil {
		t.Fatalf("DeleteRecord: %v", err)
	}
	if err := s.DeleteRecord("purchase"); err != nil {
		t.Errorf("deleting a missing record: %v", err)
	}
	if _, found, _ := s.LoadRecord("purchase"); found {
		t.Error("record still present after delete")
	}
}

func TestRecordsScopedToInstance(t *testing.T) {
	s := openTestStore(t)
	s.SaveRecord(verify.Record{Action: "purchase", GrantedAt: time.Now(), TTL: time.Minute})

	if _, err := s.db.Exec(`INSERT INTO verification_records (instance_id, action, granted_at, ttl_ms) VALUES (?, ?, ?, ?)`,
		"other-instance", "withdraw", time.Now().UTC().Format(time.RFC3339Nano), 60000); err != nil {
		t.Fatal(err)
	}
	if _, found, _ := s.LoadRecord("withdraw"); found {
		t.Error("record of another instance is visible")
	}

	if err := s.ClearRecords(); err != nil {
		t.Fatal(err)
	}
	var total int
	s.db.QueryRow(`SELECT COUNT(*) FROM verification_records`).Scan(&total)
	if total != 1 {
		t.Errorf("ClearRecords touched other instances: %d rows left", total)
	}
}

func TestCorruptRecordSurfacesError(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.db.Exec(`INSERT INTO verification_records (instance_id, action, granted_at, ttl_ms) VALUES (?, 'purchase', 'yesterday', 1)`,
		s.Instance().ID); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.LoadRecord("purchase"); err == nil {
		t.Error("expected a parse error")
	}
}

// The gate over SQLite prunes expired and corrupt records.
func TestGateOverSQLite(t *testing.T) {
	s := openTestStore(t)
	clk := clock.Fake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	g := verify.NewGate(verify.GateOptions{Store: s, Confirmer: okConfirmer{}, Clock: clk})

	if err := g.Confirm(context.Background(), "pw"); err != nil {
		t.Fatal(err)
	}
	clk.Advance(899_999 * time.Millisecond)
	if !g.CanProceed() {
		t.Error("expected verified at T+899999ms")
	}
	clk.Advance(2 * time.Millisecond)
	if g.CanProceed() {
		t.Error("expected expired at T+900001ms")
	}
	if n, _ := s.CountRecords(); n != 0 {
		t.Errorf("expired record not pruned: %d", n)
	}

	s.db.Exec(`INSERT INTO verification_records (instance_id, action, granted_at, ttl_ms) VALUES (?, ?, 'garbage', 1)`,
		s.Instance().ID, verify.DefaultAction)
	if g.CanProceed() {
		t.Error("corrupt record must not grant access")
	}
	if n, _ := s.CountRecords(); n != 0 {
		t.Errorf("corrupt record not pruned: %d", n)
	}
}

type okConfirmer struct{}

func (okConfirmer) ConfirmSecret(context.Context, string) error { return nil }

func TestParseMigrationVersion(t *testing.T) {
	tests := []struct {
		name    string
		want    int
		wantErr bool
	}{
		{"001_client_instance.sql", 1, false},
		{"012_add_index.sql", 12, false},
		{"client_instance.sql", 0, true},
		{"noprefix.sql", 0, true},
	}
	for _, tt := range tests {
		got, err := parseMigrationVersion(tt.name)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseMigrationVersion(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseMigrationVersion(%q) = %d, want %d", tt.name, got, tt.want)
		}
	}
}
