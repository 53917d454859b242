package catalog

import (
	"context"
	"database/sql"
	"errors"

	catalogerrors "github.com/kepler-soc/kic/internal/errors"
	"github.com/kepler-soc/kic/internal/query/parser"
	"github.com/kepler-soc/kic/internal/query/planner"
	"github.com/kepler-soc/kic/pkg/types"
)

const selectSkyGroupSQL = `
SELECT sky_group_id, ccd_module, ccd_output, observing_season
FROM sky_group`

// CreateSkyGroups inserts sky groups in a single transaction.
func (s *SQLStore) CreateSkyGroups(ctx context.Context, groups []types.SkyGroup) error {
	if len(groups) == 0 {
		return nil
	}
	query := s.rebind(`INSERT INTO sky_group (sky_group_id, ccd_module, ccd_output, observing_season) VALUES (?, ?, ?, ?)`)
	return s.withTx(ctx, "create sky groups", func(tx *sql.Tx) error {
		for _, g := range groups {
			if _, err := tx.ExecContext(ctx, query, g.SkyGroupID, g.CCDModule, g.CCDOutput, g.ObservingSeason); err != nil {
				return err
			}
		}
		return nil
	})
}

// RetrieveSkyGroup returns the sky group with skyGroupID, or NotFound.
func (s *SQLStore) RetrieveSkyGroup(ctx context.Context, skyGroupID int) (types.SkyGroup, error) {
	var g types.SkyGroup
	err := s.db.QueryRowContext(ctx, s.rebind(selectSkyGroupSQL+" WHERE sky_group_id = ?"), skyGroupID).
		Scan(&g.SkyGroupID, &g.CCDModule, &g.CCDOutput, &g.ObservingSeason)
	if errors.Is(err, sql.ErrNoRows) {
		return types.SkyGroup{}, notFound(catalogerrors.CodeSkyGroupNotFound, "catalog: no sky group %d", skyGroupID)
	}
	if err != nil {
		return types.SkyGroup{}, storageError(catalogerrors.CodeQueryFailed, "retrieve sky group", err)
	}
	return g, nil
}

// RetrieveSkyGroups returns every sky group ordered by id, module, output
// and season.
func (s *SQLStore) RetrieveSkyGroups(ctx context.Context) ([]types.SkyGroup, error) {
	rows, err := s.db.QueryContext(ctx,
		selectSkyGroupSQL+" ORDER BY sky_group_id, ccd_module, ccd_output, observing_season")
	if err != nil {
		return nil, storageError(catalogerrors.CodeQueryFailed, "retrieve sky groups", err)
	}
	defer rows.Close()

	var groups []types.SkyGroup
	for rows.Next() {
		var g types.SkyGroup
		if err := rows.Scan(&g.SkyGroupID, &g.CCDModule, &g.CCDOutput, &g.ObservingSeason); err != nil {
			return nil, storageError(catalogerrors.CodeQueryFailed, "retrieve sky groups", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError(catalogerrors.CodeQueryFailed, "retrieve sky groups", err)
	}
	return groups, nil
}

// ResolveSkyGroupID implements Store.
func (s *SQLStore) ResolveSkyGroupID(ctx context.Context, ccdModule, ccdOutput, observingSeason int) (int, error) {
	var id int
	err := s.db.QueryRowContext(ctx,
		s.rebind("SELECT sky_group_id FROM sky_group WHERE ccd_module = ? AND ccd_output = ? AND observing_season = ?"),
		ccdModule, ccdOutput, observingSeason).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, notFound(catalogerrors.CodeSkyGroupNotFound,
			"catalog: no sky group for module %d output %d season %d", ccdModule, ccdOutput, observingSeason)
	}
	if err != nil {
		return 0, storageError(catalogerrors.CodeQueryFailed, "resolve sky group", err)
	}
	return id, nil
}

// RetrieveVisibleSkyGroupIDs returns the distinct sky groups that hold at
// least one entry on the field of view, ascending.
func (s *SQLStore) RetrieveVisibleSkyGroupIDs(ctx context.Context) ([]int, error) {
	skyGroup := kicColumn(types.FieldSkyGroupID)
	stmt := &parser.SelectStatement{
		Distinct: true,
		Columns:  []parser.SelectColumn{{Expr: skyGroup}},
		From:     []*parser.TableRef{{Name: planner.KicTable, Alias: planner.KicAlias}},
		Where:    &parser.BinaryExpr{Left: skyGroup, Operator: "<>", Right: &parser.Param{Value: types.OffFieldOfView}},
		OrderBy:  []parser.OrderByClause{{Expr: skyGroup}},
	}
	query, args := stmt.Render(s.dialect)
	return s.queryInts(ctx, "retrieve visible sky groups", query, args...)
}
