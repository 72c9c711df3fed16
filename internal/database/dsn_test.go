package database

import (
	"path/filepath"
	"testing"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestPostgresDSNDefaults(t *testing.T) {
	dsn, err := postgresDSN(Config{User: "rentwise", Name: "rentwise"})
	require.NoError(t, err)
	require.Equal(t, "postgres://rentwise@localhost:5432/rentwise?sslmode=disable", dsn)
}

func TestPostgresDSNParsesBack(t *testing.T) {
	dsn, err := postgresDSN(Config{
		User:     "landlord",
		Name:     "listings",
		Host:     "db.example.com",
		Port:     6543,
		Password: "p@ss word",
		Options:  map[string]string{"search_path": "rentals", "application_name": "rentwise"},
	})
	require.NoError(t, err)

	parsed, err := pgconn.ParseConfig(dsn)
	require.NoError(t, err)
	require.Equal(t, "db.example.com", parsed.Host)
	require.EqualValues(t, 6543, parsed.Port)
	require.Equal(t, "landlord", parsed.User)
	require.Equal(t, "p@ss word", parsed.Password)
	require.Equal(t, "listings", parsed.Database)
	require.Equal(t, "rentals", parsed.RuntimeParams["search_path"])
	require.Nil(t, parsed.TLSConfig)
}

func TestMySQLDSNParsesBack(t *testing.T) {
	dsn, err := mysqlDSN(Config{
		User:     "landlord",
		Password: "secret",
		Name:     "listings",
		Host:     "db.example.com",
		Port:     3307,
		Options:  map[string]string{"tls": "skip-verify"},
	})
	require.NoError(t, err)
	require.Contains(t, dsn, "charset=utf8mb4")

	parsed, err := mysqldriver.ParseDSN(dsn)
	require.NoError(t, err)
	require.Equal(t, "landlord", parsed.User)
	require.Equal(t, "secret", parsed.Passwd)
	require.Equal(t, "tcp", parsed.Net)
	require.Equal(t, "db.example.com:3307", parsed.Addr)
	require.Equal(t, "listings", parsed.DBName)
	require.True(t, parsed.ParseTime)
	require.Equal(t, time.Local, parsed.Loc)
	require.Equal(t, "skip-verify", parsed.TLSConfig)
}

func TestMySQLDSNDefaultAddress(t *testing.T) {
	dsn, err := mysqlDSN(Config{User: "rentwise", Name: "rentwise"})
	require.NoError(t, err)

	parsed, err := mysqldriver.ParseDSN(dsn)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:3306", parsed.Addr)
}

func TestNetworkDSNsRequireUserAndName(t *testing.T) {
	_, err := postgresDSN(Config{})
	require.Error(t, err)
	_, err = mysqlDSN(Config{Host: "localhost"})
	require.Error(t, err)
}

func TestExplicitDSNWins(t *testing.T) {
	for _, build := range []func(Config) (string, error){sqliteDSN, postgresDSN, mysqlDSN} {
		dsn, err := build(Config{DSN: "as-given"})
		require.NoError(t, err)
		require.Equal(t, "as-given", dsn)
	}
}

func TestSQLiteDSN(t *testing.T) {
	dsn, err := sqliteDSN(Config{Path: ":memory:"})
	require.NoError(t, err)
	require.Equal(t, sharedMemoryDSN, dsn)

	path := filepath.Join(t.TempDir(), "nested", "rentwise.sqlite")
	dsn, err = sqliteDSN(Config{Path: path})
	require.NoError(t, err)
	require.DirExists(t, filepath.Dir(path))
	require.Equal(t, "file:"+filepath.ToSlash(path)+"?_foreign_keys=1&_journal_mode=WAL", dsn)
}

func TestNormaliseDriver(t *testing.T) {
	require.Equal(t, "sqlite", normaliseDriver(""))
	require.Equal(t, "sqlite", normaliseDriver("SQLite3"))
	require.Equal(t, "postgres", normaliseDriver(" postgresql "))
	require.Equal(t, "mysql", normaliseDriver("mariadb"))
	require.Equal(t, "oracle", normaliseDriver("oracle"))
}
