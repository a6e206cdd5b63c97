package postgresql

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_DSN(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		want   string
	}{
		{
			name:   "explicit sslmode",
			config: Config{Host: "db", Port: 5432, User: "u", Password: "p", Database: "tasks", SSLMode: "require"},
			want:   "host=db port=5432 user=u password=p dbname=tasks sslmode=require",
		},
		{
			name:   "sslmode defaults to disable",
			config: Config{Host: "localhost", Port: 5433, User: "u", Password: "p", Database: "tasks"},
			want:   "host=localhost port=5433 user=u password=p dbname=tasks sslmode=disable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.config.DSN())
		})
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	data, err := migrationsFS.ReadFile("migrations/" + entries[0].Name())
	require.NoError(t, err)
	assert.Contains(t, string(data), "-- +goose Up")
	assert.Contains(t, string(data), "task_results")
}

func TestGooseLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	l := &gooseLogger{logger: slog.New(slog.NewTextHandler(buf, nil))}

	l.Printf("applied %d migrations", 1)
	l.Fatalf("failed: %s", "boom")

	assert.Contains(t, buf.String(), "applied 1 migrations")
	assert.Contains(t, buf.String(), "failed: boom")
	assert.Contains(t, buf.String(), "component=migrations")
}
