package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cartship/flutterwave-gateway/pkg/migrate"
)

func TestMigrationsDirValidates(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("migrations dir failed validation: %v", err)
	}
}

func TestOutboxMigrationShape(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_outbox_events.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no outbox migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE outbox_events",
		"idx_outbox_events_aggregate",
		"WHERE published_at IS NULL",
		"DROP TABLE IF EXISTS outbox_events",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}

	// Renewals, status moves and partial refunds all repeat per aggregate;
	// a unique key here would fail the second emit.
	if strings.Contains(content, "CREATE UNIQUE INDEX") {
		t.Error("outbox_events must not carry a unique index")
	}
}

func TestTransactionsMigrationIndexesProviderRefs(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_order_transactions.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no order_transactions migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE order_transactions",
		"meta ->> 'flw_ref'",
		"ux_order_transactions_charge_provider_id",
		"WHERE type = 'charge' AND provider_charge_id <> ''",
		"order_id, created_at, id",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}
