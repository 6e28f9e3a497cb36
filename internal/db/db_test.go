package db

import (
	"context"
	"errors"
	"strings"
	"testing"

	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func TestMigrate(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec(schema).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	if err := Migrate(context.Background(), mock); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMigrateError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS users`).WillReturnError(errors.New("permission denied"))

	err = Migrate(context.Background(), mock)
	if err == nil || !strings.Contains(err.Error(), "apply schema") {
		t.Fatalf("expected wrapped schema error, got %v", err)
	}
}

func TestSchemaKeepsConversationUniqueness(t *testing.T) {
	t.Parallel()

	if !strings.Contains(schema, "UNIQUE (user_id, phone_number_id, recipient_number)") {
		t.Fatalf("conversations must be unique per (user, phone number, recipient)")
	}
	if !strings.Contains(schema, "CHECK (sms_credits >= 0)") {
		t.Fatalf("sms credits must be non-negative")
	}
}
