package sqlstore

import (
	"fmt"
	"strings"

	"github.com/velmie/spool"
)

// ErrInvalidIdentifier is returned when a table or column name has disallowed characters.
var ErrInvalidIdentifier = fmt.Errorf("%w: invalid identifier", spool.ErrInvalidConfig)

// Names holds the validated identifiers a Store queries with.
type Names struct {
	Table     string
	ID        string
	Payload   string
	ClaimedAt string
}

// IndexName derives an index name from the table, dropping any schema prefix separator.
func (n Names) IndexName() string {
	return strings.ReplaceAll(n.Table, ".", "_") + "_claimed_idx"
}

func (c Config) names() (Names, error) {
	table, err := sanitizeTableName(c.Table)
	if err != nil {
		return Names{}, err
	}
	id, err := sanitizeColumnName("id column", c.IDColumn)
	if err != nil {
		return Names{}, err
	}
	payload, err := sanitizeColumnName("payload column", c.PayloadColumn)
	if err != nil {
		return Names{}, err
	}
	claimedAt, err := sanitizeColumnName("claimed at column", c.ClaimedAtColumn)
	if err != nil {
		return Names{}, err
	}

	return Names{Table: table, ID: id, Payload: payload, ClaimedAt: claimedAt}, nil
}

func sanitizeTableName(name string) (string, error) {
	name, err := spool.CheckName("table name", name)
	if err != nil {
		return "", err
	}
	for _, part := range strings.Split(name, ".") {
		if part == "" || !isIdentifier(part) {
			return "", fmt.Errorf("%w: %s", ErrInvalidIdentifier, name)
		}
	}

	return name, nil
}

func sanitizeColumnName(field, name string) (string, error) {
	name, err := spool.CheckName(field, name)
	if err != nil {
		return "", err
	}
	if !isIdentifier(name) {
		return "", fmt.Errorf("%w: %s", ErrInvalidIdentifier, name)
	}

	return name, nil
}

func isIdentifier(part string) bool {
	for _, r := range part {
		if r == '_' || (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			continue
		}

		return false
	}

	return true
}
