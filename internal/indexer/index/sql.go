package index

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
)

// DefaultTable is the postings table read by LoadSQL when none is configured.
//
//	CREATE TABLE postings (
//	    term      TEXT    NOT NULL,
//	    doc_id    INTEGER NOT NULL,
//	    frequency INTEGER NOT NULL,
//	    PRIMARY KEY (term, doc_id)
//	);
const DefaultTable = "postings"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// LoadSQL reads every (term, doc_id, frequency) row of table into an index.
// Works with any database/sql driver that accepts plain SELECTs.
func LoadSQL(ctx context.Context, db *sql.DB, table string) (Inverted, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid postings table name %q", table)
	}
	rows, err := db.QueryContext(ctx,
		fmt.Sprintf(`SELECT term, doc_id, frequency FROM %s`, table),
	)
	if err != nil {
		return nil, fmt.Errorf("querying postings: %w", err)
	}
	defer rows.Close()

	b := NewBuilder()
	for rows.Next() {
		var p Posting
		if err := rows.Scan(&p.Term, &p.DocID, &p.Frequency); err != nil {
			return nil, fmt.Errorf("scanning posting: %w", err)
		}
		b.Add(p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating postings: %w", err)
	}
	return b.Build(), nil
}
