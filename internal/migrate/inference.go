package migrate

import (
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/aro-ch/mariamove/internal/dbserver"
)

// reservedColumns never participate in foreign-key inference, even though
// some of them end in the "_id"-ish suffixes the inferencer looks for.
var reservedColumns = map[string]bool{
	"id":         true,
	"created_by": true,
	"updated_by": true,
	"created_at": true,
	"updated_at": true,
}

// InferForeignKeys augments each table's discovered foreign keys with
// implicit ones detected from column naming: a column like role_id or roleId
// referencing a table named role or roles (and roles_id also matching role).
// Explicit keys take
// precedence for the same column. The source schemas frequently omit
// declared constraints while still following naming discipline, so this
// recovers relationships that introspection alone misses.
func InferForeignKeys(tables []*dbserver.TableInfo) {
	byLowerName := make(map[string]*dbserver.TableInfo, len(tables))
	for _, t := range tables {
		byLowerName[strings.ToLower(t.Name)] = t
	}

	for _, t := range tables {
		declared := make(map[string]bool, len(t.ForeignKeys))
		for _, fk := range t.ForeignKeys {
			declared[strings.ToLower(fk.Column)] = true
		}
		for _, col := range t.Columns {
			colLower := strings.ToLower(col)
			if reservedColumns[colLower] || declared[colLower] {
				continue
			}
			stem := idColumnStem(colLower)
			if stem == "" {
				continue
			}
			target := resolveStem(stem, byLowerName)
			if target == nil {
				continue
			}
			if !target.HasColumn("id") {
				log.Warnf("Inferred %s.%s.%s -> %s, but %s has no id column; joins on it will match nothing",
					t.Database, t.Name, col, target.Name, target.Name)
			}
			t.ForeignKeys = append(t.ForeignKeys, &dbserver.ForeignKey{
				Column:          col,
				ReferencedTable: target.Name,
				Implicit:        true,
			})
			declared[colLower] = true
		}
	}
}

// idColumnStem strips a trailing "_id" or "id" (case-insensitive; input is
// already lowercased) and returns the remaining stem, or "" if the column
// doesn't carry the suffix.
func idColumnStem(colLower string) string {
	if strings.HasSuffix(colLower, "_id") {
		return colLower[:len(colLower)-3]
	}
	if strings.HasSuffix(colLower, "id") && len(colLower) > 2 {
		return colLower[:len(colLower)-2]
	}
	return ""
}

// resolveStem tries to match a column stem to a table, in order: the stem
// itself, the stem pluralized, the stem with a trailing "s" removed.
func resolveStem(stem string, byLowerName map[string]*dbserver.TableInfo) *dbserver.TableInfo {
	if stem == "" {
		return nil
	}
	candidates := []string{stem, stem + "s", strings.TrimSuffix(stem, "s")}
	for _, candidate := range candidates {
		if t, ok := byLowerName[candidate]; ok {
			return t
		}
	}
	return nil
}
