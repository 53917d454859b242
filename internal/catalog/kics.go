package catalog

import (
	"context"
	"database/sql"
	"strings"

	catalogerrors "github.com/kepler-soc/kic/internal/errors"
	"github.com/kepler-soc/kic/internal/query/parser"
	"github.com/kepler-soc/kic/internal/query/planner"
	"github.com/kepler-soc/kic/pkg/types"
)

func kicColumn(f types.Field) *parser.ColumnRef {
	return &parser.ColumnRef{Table: planner.KicAlias, Column: f.Column()}
}

// kicSelect builds SELECT <every field> FROM kic AS kic WHERE where ORDER BY kepler_id.
func kicSelect(where parser.Expression) *parser.SelectStatement {
	return &parser.SelectStatement{
		Columns: planner.KicColumns(planner.KicAlias),
		From:    []*parser.TableRef{{Name: planner.KicTable, Alias: planner.KicAlias}},
		Where:   where,
		OrderBy: []parser.OrderByClause{{Expr: kicColumn(types.FieldKeplerID)}},
	}
}

func (s *SQLStore) selectKics(ctx context.Context, op string, stmt *parser.SelectStatement) ([]*types.Kic, error) {
	query, args := stmt.Render(s.dialect)
	return s.queryKics(ctx, op, query, args)
}

func (s *SQLStore) queryKics(ctx context.Context, op, query string, args []interface{}) ([]*types.Kic, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageError(catalogerrors.CodeQueryFailed, op, err)
	}
	defer rows.Close()

	var kics []*types.Kic
	for rows.Next() {
		k, err := scanKic(rows)
		if err != nil {
			return nil, storageError(catalogerrors.CodeQueryFailed, op, err)
		}
		kics = append(kics, k)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError(catalogerrors.CodeQueryFailed, op, err)
	}
	return kics, nil
}

// scanKic scans one row whose columns are the fixed fields in field order.
func scanKic(rows *sql.Rows) (*types.Kic, error) {
	k := &types.Kic{}
	fields := types.Fields()
	dest := make([]interface{}, len(fields))
	for i, f := range fields {
		dest[i] = f.ScanTarget(k)
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, err
	}
	return k, nil
}

// QueryKics runs a query compiled by the planner for this store's dialect.
func (s *SQLStore) QueryKics(ctx context.Context, q *planner.CompiledQuery) ([]*types.Kic, error) {
	if q == nil {
		return nil, catalogerrors.InvalidArgumentf("catalog: nil compiled query")
	}
	return s.queryKics(ctx, "query kics", q.SQL, q.Args)
}

// CreateKics inserts kics in a single transaction.
func (s *SQLStore) CreateKics(ctx context.Context, kics []*types.Kic) error {
	if len(kics) == 0 {
		return nil
	}
	fields := types.Fields()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Column()
	}
	query := s.rebind("INSERT INTO " + planner.KicTable + " (" + strings.Join(columns, ", ") +
		") VALUES (" + placeholders(len(fields)) + ")")

	return s.withTx(ctx, "create kics", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return err
		}
		defer stmt.Close()

		args := make([]interface{}, len(fields))
		for _, k := range kics {
			for i, f := range fields {
				args[i] = f.Value(k)
			}
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return err
			}
		}
		return nil
	})
}

// RetrieveKic returns the entry with keplerID, or a NotFound error.
func (s *SQLStore) RetrieveKic(ctx context.Context, keplerID int) (*types.Kic, error) {
	kics, err := s.RetrieveKicsByIDs(ctx, []int{keplerID})
	if err != nil {
		return nil, err
	}
	if len(kics) == 0 {
		return nil, notFound(catalogerrors.CodeKicNotFound, "catalog: no kic with kepler id %d", keplerID)
	}
	return kics[0], nil
}

// RetrieveKicsByIDs implements Store. The caller bounds len(ids).
func (s *SQLStore) RetrieveKicsByIDs(ctx context.Context, ids []int) ([]*types.Kic, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.selectKics(ctx, "retrieve kics by id",
		kicSelect(parser.InParams(kicColumn(types.FieldKeplerID), ids)))
}

// RetrieveKicsForSkyGroup implements Store.
func (s *SQLStore) RetrieveKicsForSkyGroup(ctx context.Context, skyGroupID int) ([]*types.Kic, error) {
	return s.selectKics(ctx, "retrieve kics for sky group",
		kicSelect(eq(kicColumn(types.FieldSkyGroupID), skyGroupID)))
}

// RetrieveKicsForSkyGroupIDRange returns the entries of a sky group whose
// Kepler id lies in [minKeplerID, maxKeplerID].
func (s *SQLStore) RetrieveKicsForSkyGroupIDRange(ctx context.Context, skyGroupID, minKeplerID, maxKeplerID int) ([]*types.Kic, error) {
	return s.selectKics(ctx, "retrieve kics for sky group id range", kicSelect(parser.And(
		eq(kicColumn(types.FieldSkyGroupID), skyGroupID),
		between(kicColumn(types.FieldKeplerID), minKeplerID, maxKeplerID),
	)))
}

// RetrieveKicsForCCD returns the entries of the sky group seen by a CCD
// module/output in an observing season.
func (s *SQLStore) RetrieveKicsForCCD(ctx context.Context, ccdModule, ccdOutput, observingSeason int) ([]*types.Kic, error) {
	sub := &parser.SelectStatement{
		Columns: []parser.SelectColumn{{Expr: &parser.ColumnRef{Column: "sky_group_id"}}},
		From:    []*parser.TableRef{{Name: planner.SkyGroupTable}},
		Where: parser.And(
			eq(&parser.ColumnRef{Column: "ccd_module"}, ccdModule),
			eq(&parser.ColumnRef{Column: "ccd_output"}, ccdOutput),
			eq(&parser.ColumnRef{Column: "observing_season"}, observingSeason),
		),
	}
	return s.selectKics(ctx, "retrieve kics for ccd", kicSelect(&parser.BinaryExpr{
		Left:     kicColumn(types.FieldSkyGroupID),
		Operator: "=",
		Right:    &parser.SubqueryExpr{Select: sub},
	}))
}

// RetrieveKicsByIDRange returns the entries with Kepler id in [minKeplerID, maxKeplerID].
func (s *SQLStore) RetrieveKicsByIDRange(ctx context.Context, minKeplerID, maxKeplerID int) ([]*types.Kic, error) {
	return s.selectKics(ctx, "retrieve kics by id range",
		kicSelect(between(kicColumn(types.FieldKeplerID), minKeplerID, maxKeplerID)))
}

// RetrieveKicsByMagnitude returns the entries with Kepler magnitude in
// [minMag, maxMag]. Entries without a magnitude never match.
func (s *SQLStore) RetrieveKicsByMagnitude(ctx context.Context, minMag, maxMag float64) ([]*types.Kic, error) {
	return s.selectKics(ctx, "retrieve kics by magnitude",
		kicSelect(between(kicColumn(types.FieldKepMag), minMag, maxMag)))
}

// RetrieveKeplerIDRange returns the smallest and largest Kepler id. Both
// are 0 when the catalog is empty.
func (s *SQLStore) RetrieveKeplerIDRange(ctx context.Context) (int, int, error) {
	var lo, hi sql.NullInt64
	err := s.db.QueryRowContext(ctx, "SELECT MIN(kepler_id), MAX(kepler_id) FROM kic").Scan(&lo, &hi)
	if err != nil {
		return 0, 0, storageError(catalogerrors.CodeQueryFailed, "retrieve kepler id range", err)
	}
	return int(lo.Int64), int(hi.Int64), nil
}

// Exists reports whether an entry with keplerID is stored.
func (s *SQLStore) Exists(ctx context.Context, keplerID int) (bool, error) {
	n, err := s.count(ctx, "kic exists", "SELECT COUNT(*) FROM kic WHERE kepler_id = ?", keplerID)
	return n > 0, err
}

// Count returns the number of stored entries.
func (s *SQLStore) Count(ctx context.Context) (int64, error) {
	return s.count(ctx, "count kics", "SELECT COUNT(*) FROM kic")
}

// VisibleCount returns the number of entries that fall on the field of view.
func (s *SQLStore) VisibleCount(ctx context.Context) (int64, error) {
	return s.count(ctx, "count visible kics", "SELECT COUNT(*) FROM kic WHERE sky_group_id <> ?", types.OffFieldOfView)
}

// DeleteAllKics removes every entry and returns how many were removed.
func (s *SQLStore) DeleteAllKics(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM kic")
	if err != nil {
		return 0, storageError(catalogerrors.CodeWriteFailed, "delete kics", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// RetrieveSkyGroupIDsForKeplerIDs maps each id in one chunk to its sky
// group. Ids with no entry are absent.
func (s *SQLStore) RetrieveSkyGroupIDsForKeplerIDs(ctx context.Context, ids []int) (map[int]int, error) {
	out := make(map[int]int, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx,
		s.rebind("SELECT kepler_id, sky_group_id FROM kic WHERE kepler_id IN ("+placeholders(len(ids))+")"),
		intArgs(ids)...)
	if err != nil {
		return nil, storageError(catalogerrors.CodeQueryFailed, "retrieve sky group ids", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, sg int
		if err := rows.Scan(&id, &sg); err != nil {
			return nil, storageError(catalogerrors.CodeQueryFailed, "retrieve sky group ids", err)
		}
		out[id] = sg
	}
	if err := rows.Err(); err != nil {
		return nil, storageError(catalogerrors.CodeQueryFailed, "retrieve sky group ids", err)
	}
	return out, nil
}

func eq(col parser.Expression, v interface{}) *parser.BinaryExpr {
	return &parser.BinaryExpr{Left: col, Operator: "=", Right: &parser.Param{Value: v}}
}

func between(col parser.Expression, lo, hi interface{}) *parser.BetweenExpr {
	return &parser.BetweenExpr{Expr: col, Low: &parser.Param{Value: lo}, High: &parser.Param{Value: hi}}
}
