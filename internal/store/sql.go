package store

import (
	"fmt"
	"strings"
	"time"
)

// whereClause renders f as a SQL WHERE/ORDER/LIMIT suffix. ph renders the
// n-th placeholder and ts converts timestamps to the column type.
func whereClause(f Filter, ph func(n int) string, ts func(time.Time) any) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, ph(len(args))))
	}

	if f.ProjectID != "" {
		add("project_id = %s", f.ProjectID)
	}
	if f.Status != "" {
		add("status = %s", f.Status)
	}
	if f.Name != "" {
		add("name = %s", f.Name)
	}
	if !f.CreatedAfter.IsZero() {
		add("created_at >= %s", ts(f.CreatedAfter))
	}
	if !f.CreatedBefore.IsZero() {
		add("created_at < %s", ts(f.CreatedBefore))
	}

	var b strings.Builder
	if len(conds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conds, " AND "))
	}
	b.WriteString(" ORDER BY created_at, id")
	if f.Limit > 0 {
		args = append(args, f.Limit)
		fmt.Fprintf(&b, " LIMIT %s", ph(len(args)))
	}
	return b.String(), args
}
