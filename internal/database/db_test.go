package database

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"dai-trader/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{
		Host: "db", Port: 5433, User: "trader", Password: "pw", Database: "dai", SSLMode: "require",
	})
	assert.Equal(t, "host=db port=5433 user=trader password=pw dbname=dai sslmode=require", dsn)
}

func TestMigrationsCreateTables(t *testing.T) {
	joined := strings.Join(Migrations, "\n")
	assert.Contains(t, joined, "CREATE TABLE IF NOT EXISTS state_blobs")
	assert.Contains(t, joined, "CREATE TABLE IF NOT EXISTS trades")
	for _, m := range Migrations {
		assert.Contains(t, m, "IF NOT EXISTS", "migrations must be re-runnable")
	}
}
