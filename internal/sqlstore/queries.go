package sqlstore

import "fmt"

type queries struct {
	insert        string
	selectAll     string
	selectLimited string
	claim         string
	delete        string
	recover       string
	lookup        string
	countPending  string
}

// #nosec G201 -- identifiers are sanitized in Config.names.
func newQueries(n Names, ph func(int) string) queries {
	cols := fmt.Sprintf("%s, %s", n.ID, n.Payload)
	selectAll := fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s IS NULL ORDER BY %s ASC",
		cols,
		n.Table,
		n.ClaimedAt,
		n.ID,
	)

	return queries{
		insert:        fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s, %s)", n.Table, cols, ph(1), ph(2)),
		selectAll:     selectAll,
		selectLimited: selectAll + " LIMIT " + ph(1),
		claim: fmt.Sprintf(
			"UPDATE %s SET %s = %s WHERE %s = %s AND %s IS NULL",
			n.Table,
			n.ClaimedAt,
			ph(1),
			n.ID,
			ph(2),
			n.ClaimedAt,
		),
		delete: fmt.Sprintf("DELETE FROM %s WHERE %s = %s", n.Table, n.ID, ph(1)),
		recover: fmt.Sprintf(
			"UPDATE %s SET %s = NULL WHERE %s IS NOT NULL AND %s < %s",
			n.Table,
			n.ClaimedAt,
			n.ClaimedAt,
			n.ClaimedAt,
			ph(1),
		),
		lookup: fmt.Sprintf(
			"SELECT %s, %s FROM %s WHERE %s = %s",
			n.Payload,
			n.ClaimedAt,
			n.Table,
			n.ID,
			ph(1),
		),
		countPending: fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s IS NULL", n.Table, n.ClaimedAt),
	}
}
