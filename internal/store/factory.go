package store

import (
	"fmt"
	"net/url"

	"github.com/circletel/circletel/internal/config"
)

// New opens the configured database and applies its schema.
func New(cfg config.StorageConfig) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Driver {
	case "postgres":
		s, err = NewPostgres(cfg.DSN)
	case "sqlite", "":
		s, err = NewSQLite(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s (%s): %w", cfg.Driver, RedactDSN(cfg.DSN), err)
	}
	return s, nil
}

// RedactDSN hides the password in a URL-style DSN so it can be logged.
// File paths and key=value DSNs are returned unchanged.
func RedactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
