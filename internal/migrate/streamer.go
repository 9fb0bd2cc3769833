package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"

	"github.com/aro-ch/mariamove/internal/dbserver"
)

// DefaultBatchSize is the number of rows fetched and inserted per page.
const DefaultBatchSize = 1000

// maxSurfacedRowErrors caps how many per-row insert errors are logged
// verbatim for one table; the rest are counted silently.
const maxSurfacedRowErrors = 3

// CopyCounts reports the outcome of one table copy. Failed includes both
// duplicate-suppressed rows and rows the destination rejected; for a clean
// run Inserted+Failed always equals Found.
type CopyCounts struct {
	Found    int64
	Inserted int64
	Failed   int64
}

// Streamer copies filtered rows of one database from a source pool to a
// destination pool. The destination pool is expected to have
// foreign_key_checks disabled, so tables can be copied in any order.
type Streamer struct {
	Source      *sqlx.DB
	Dest        *sqlx.DB
	BatchSize   int
	TenantIDs   []int
	SeedUserIDs []int
}

func (st *Streamer) batchSize() int {
	if st.BatchSize < 1 {
		return DefaultBatchSize
	}
	return st.BatchSize
}

func (st *Streamer) filterIDs(idType IDType) []int {
	if idType == IDTypeUser {
		return st.SeedUserIDs
	}
	return st.TenantIDs
}

// selectParts returns the column list, FROM clause (including any joins),
// and WHERE clause for a plan. unfiltered forces a full-table copy
// regardless of class, for force-listed tables. The WHERE clause, when
// non-empty, contains a single IN (?) to be expanded via sqlx.In with the
// returned ids.
func selectParts(p *Plan, unfiltered bool) (columns []string, from, where string) {
	t := p.Table
	if unfiltered || p.Class == ClassReference {
		for _, col := range t.Columns {
			columns = append(columns, dbserver.EscapeIdentifier(col))
		}
		return columns, t.QualifiedName(), ""
	}

	switch p.Class {
	case ClassDirectTenant, ClassDirectUser:
		for _, col := range t.Columns {
			columns = append(columns, dbserver.EscapeIdentifier(col))
		}
		from = t.QualifiedName()
		where = fmt.Sprintf("%s IN (?)", dbserver.EscapeIdentifier(p.FilterColumn))
	case ClassIndirect:
		for _, col := range t.Columns {
			columns = append(columns, fmt.Sprintf("t0.%s", dbserver.EscapeIdentifier(col)))
		}
		var b strings.Builder
		fmt.Fprintf(&b, "%s AS t0", t.QualifiedName())
		for n, hop := range p.Chain.Hops {
			fmt.Fprintf(&b, " INNER JOIN %s AS t%d ON t%d.%s = t%d.%s",
				dbserver.QualifiedName(t.Database, p.Chain.Tables[n+1]), n+1,
				n, dbserver.EscapeIdentifier(hop.Column),
				n+1, dbserver.EscapeIdentifier(hop.JoinColumn()))
		}
		from = b.String()
		where = fmt.Sprintf("t%d.%s IN (?)", len(p.Chain.Hops), dbserver.EscapeIdentifier(p.Chain.FilterColumn))
	}
	return columns, from, where
}

// CountRows returns how many source rows the plan selects.
func (st *Streamer) CountRows(p *Plan, unfiltered bool) (int64, error) {
	_, from, where := selectParts(p, unfiltered)
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", from)
	var args []interface{}
	if where != "" {
		var err error
		query, args, err = sqlx.In(fmt.Sprintf("%s WHERE %s", query, where), st.filterIDs(p.IDType()))
		if err != nil {
			return 0, err
		}
	}
	var count int64
	err := st.Source.Get(&count, query, args...)
	return count, err
}

// CopyTable migrates one table's selected rows in batches. Each batch is one
// destination transaction of per-row INSERT IGNORE statements: duplicates
// and rejected rows are counted but never abort the batch. The context is
// consulted between batches, so an interrupt lets the in-flight batch finish
// cleanly.
func (st *Streamer) CopyTable(ctx context.Context, p *Plan, unfiltered bool) (CopyCounts, error) {
	var counts CopyCounts

	found, err := st.CountRows(p, unfiltered)
	if err != nil {
		return counts, err
	}
	counts.Found = found
	if found == 0 {
		return counts, nil
	}

	columns, from, where := selectParts(p, unfiltered)
	insertSQL := buildInsertIgnore(p.Table)

	batch := st.batchSize()
	pages := (found + int64(batch) - 1) / int64(batch)
	var surfacedErrors int

	for page := int64(0); page < pages; page++ {
		if err := ctx.Err(); err != nil {
			return counts, err
		}

		query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(columns, ", "), from)
		var args []interface{}
		if where != "" {
			if query, args, err = sqlx.In(fmt.Sprintf("%s WHERE %s", query, where), st.filterIDs(p.IDType())); err != nil {
				return counts, err
			}
		}
		query = fmt.Sprintf("%s LIMIT %d OFFSET %d", query, batch, page*int64(batch))

		// The page's SELECT and insert transaction are not bound to ctx, so a
		// batch already under way runs to completion
		rows, err := st.Source.QueryxContext(context.Background(), query, args...)
		if err != nil {
			return counts, err
		}
		var batchRows [][]interface{}
		for rows.Next() {
			vals, err := rows.SliceScan()
			if err != nil {
				rows.Close()
				return counts, err
			}
			batchRows = append(batchRows, vals)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return counts, err
		}
		rows.Close()
		if len(batchRows) == 0 {
			break // source shrank mid-copy; nothing left to page through
		}

		if err := st.insertBatch(context.Background(), insertSQL, p.Table, batchRows, &counts, &surfacedErrors); err != nil {
			return counts, err
		}
	}

	if extra := surfacedErrors - maxSurfacedRowErrors; extra > 0 {
		log.Warnf("%s: %d additional row error(s) suppressed", p.Table.QualifiedName(), extra)
	}
	return counts, nil
}

// insertBatch writes one page of rows inside a single destination
// transaction.
func (st *Streamer) insertBatch(ctx context.Context, insertSQL string, t *dbserver.TableInfo, batchRows [][]interface{}, counts *CopyCounts, surfacedErrors *int) error {
	tx, err := st.Dest.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	// A prepare failure (e.g. a column the destination lacks) downgrades to
	// per-row Exec so each rejected row is counted rather than aborting the
	// table.
	stmt, prepErr := tx.Prepare(insertSQL)
	exec := func(vals []interface{}) (rowsAffected int64, err error) {
		var res sql.Result
		if prepErr == nil {
			res, err = stmt.Exec(vals...)
		} else {
			res, err = tx.Exec(insertSQL, vals...)
		}
		if err != nil {
			return 0, err
		}
		n, _ := res.RowsAffected()
		return n, nil
	}
	for _, vals := range batchRows {
		n, execErr := exec(vals)
		if execErr != nil {
			counts.Failed++
			*surfacedErrors++
			if *surfacedErrors <= maxSurfacedRowErrors {
				log.Warnf("%s: row insert failed: %s", t.QualifiedName(), execErr)
			}
			continue
		}
		if n == 0 {
			counts.Failed++ // duplicate suppressed by INSERT IGNORE
		} else {
			counts.Inserted++
		}
	}
	if stmt != nil {
		stmt.Close()
	}
	return tx.Commit()
}

// buildInsertIgnore emits the per-row insert statement against the full
// source column list, in source order. Columns the destination lacks
// surface as per-row errors rather than aborting the table.
func buildInsertIgnore(t *dbserver.TableInfo) string {
	escaped := make([]string, len(t.Columns))
	placeholders := make([]string, len(t.Columns))
	for n, col := range t.Columns {
		escaped[n] = dbserver.EscapeIdentifier(col)
		placeholders[n] = "?"
	}
	return fmt.Sprintf("INSERT IGNORE INTO %s (%s) VALUES (%s)",
		t.QualifiedName(), strings.Join(escaped, ", "), strings.Join(placeholders, ", "))
}
