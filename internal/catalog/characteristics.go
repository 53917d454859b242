package catalog

import (
	"context"
	"database/sql"
	"errors"

	catalogerrors "github.com/kepler-soc/kic/internal/errors"
	"github.com/kepler-soc/kic/pkg/types"
)

const selectCharacteristicSQL = `
SELECT c.id, c.kepler_id, c.value, c.quarter, t.id, t.name, t.format
FROM characteristic c
JOIN characteristic_type t ON t.id = c.type_id`

// CreateCharacteristicType registers t and fills in its id.
func (s *SQLStore) CreateCharacteristicType(ctx context.Context, t *types.CharacteristicType) error {
	if t == nil || t.Name == "" {
		return catalogerrors.InvalidArgumentf("catalog: characteristic type needs a name")
	}
	err := s.db.QueryRowContext(ctx,
		s.rebind("INSERT INTO characteristic_type (name, format) VALUES (?, ?) RETURNING id"),
		t.Name, t.Format).Scan(&t.ID)
	if err != nil {
		return storageError(catalogerrors.CodeWriteFailed, "create characteristic type", err)
	}
	return nil
}

// RetrieveCharacteristicType returns the type registered under name, or NotFound.
func (s *SQLStore) RetrieveCharacteristicType(ctx context.Context, name string) (types.CharacteristicType, error) {
	var t types.CharacteristicType
	err := s.db.QueryRowContext(ctx,
		s.rebind("SELECT id, name, format FROM characteristic_type WHERE name = ?"), name).
		Scan(&t.ID, &t.Name, &t.Format)
	if errors.Is(err, sql.ErrNoRows) {
		return types.CharacteristicType{}, notFound(catalogerrors.CodeCharacteristicNotFound,
			"catalog: no characteristic type %q", name)
	}
	if err != nil {
		return types.CharacteristicType{}, storageError(catalogerrors.CodeQueryFailed, "retrieve characteristic type", err)
	}
	return t, nil
}

// RetrieveCharacteristicTypes returns every registered type ordered by id.
func (s *SQLStore) RetrieveCharacteristicTypes(ctx context.Context) ([]types.CharacteristicType, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, format FROM characteristic_type ORDER BY id")
	if err != nil {
		return nil, storageError(catalogerrors.CodeQueryFailed, "retrieve characteristic types", err)
	}
	defer rows.Close()

	var out []types.CharacteristicType
	for rows.Next() {
		var t types.CharacteristicType
		if err := rows.Scan(&t.ID, &t.Name, &t.Format); err != nil {
			return nil, storageError(catalogerrors.CodeQueryFailed, "retrieve characteristic types", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError(catalogerrors.CodeQueryFailed, "retrieve characteristic types", err)
	}
	return out, nil
}

// CreateCharacteristics inserts values in one transaction and fills in
// their ids. Every value's type must be registered.
func (s *SQLStore) CreateCharacteristics(ctx context.Context, values []*types.Characteristic) error {
	for i, c := range values {
		if c == nil || !c.Type.Registered() {
			return catalogerrors.InvalidArgumentf("catalog: characteristic %d has an unregistered type", i)
		}
	}
	if len(values) == 0 {
		return nil
	}

	query := s.rebind("INSERT INTO characteristic (kepler_id, type_id, value, quarter) VALUES (?, ?, ?, ?) RETURNING id")
	return s.withTx(ctx, "create characteristics", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, c := range values {
			if err := stmt.QueryRowContext(ctx, c.KeplerID, c.Type.ID, c.Value, c.Quarter).Scan(&c.ID); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLStore) queryCharacteristics(ctx context.Context, op, query string, args ...interface{}) ([]*types.Characteristic, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, storageError(catalogerrors.CodeQueryFailed, op, err)
	}
	defer rows.Close()

	var out []*types.Characteristic
	for rows.Next() {
		c := &types.Characteristic{}
		var quarter sql.NullInt64
		if err := rows.Scan(&c.ID, &c.KeplerID, &c.Value, &quarter, &c.Type.ID, &c.Type.Name, &c.Type.Format); err != nil {
			return nil, storageError(catalogerrors.CodeQueryFailed, op, err)
		}
		if quarter.Valid {
			q := int(quarter.Int64)
			c.Quarter = &q
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError(catalogerrors.CodeQueryFailed, op, err)
	}
	return out, nil
}

// RetrieveCharacteristic returns the current value of typeID for keplerID,
// or NotFound.
func (s *SQLStore) RetrieveCharacteristic(ctx context.Context, keplerID int, typeID int64) (*types.Characteristic, error) {
	out, err := s.queryCharacteristics(ctx, "retrieve characteristic",
		selectCharacteristicSQL+" WHERE c.kepler_id = ? AND c.type_id = ? ORDER BY c.id DESC LIMIT 1",
		keplerID, typeID)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, notFound(catalogerrors.CodeCharacteristicNotFound,
			"catalog: no characteristic %d for kepler id %d", typeID, keplerID)
	}
	return out[0], nil
}

// RetrieveCharacteristicsForKeplerIDs returns every characteristic row of
// one chunk of ids, oldest first.
func (s *SQLStore) RetrieveCharacteristicsForKeplerIDs(ctx context.Context, ids []int) ([]*types.Characteristic, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.queryCharacteristics(ctx, "retrieve characteristics for kepler ids",
		selectCharacteristicSQL+" WHERE c.kepler_id IN ("+placeholders(len(ids))+") ORDER BY c.id",
		intArgs(ids)...)
}

// RetrieveCharacteristicsForSkyGroup returns every characteristic row of
// the entries in a sky group, oldest first.
func (s *SQLStore) RetrieveCharacteristicsForSkyGroup(ctx context.Context, skyGroupID int) ([]*types.Characteristic, error) {
	return s.queryCharacteristics(ctx, "retrieve characteristics for sky group",
		selectCharacteristicSQL+" JOIN kic k ON k.kepler_id = c.kepler_id WHERE k.sky_group_id = ? ORDER BY c.id",
		skyGroupID)
}

// RetrieveCharacteristics returns the values of typeID for the entries of a
// sky group in one quarter. A nil quarter selects values not tied to any
// quarter.
func (s *SQLStore) RetrieveCharacteristics(ctx context.Context, typeID int64, skyGroupID int, quarter *int) ([]*types.Characteristic, error) {
	query := selectCharacteristicSQL + " JOIN kic k ON k.kepler_id = c.kepler_id WHERE c.type_id = ? AND k.sky_group_id = ?"
	args := []interface{}{typeID, skyGroupID}
	if quarter == nil {
		query += " AND c.quarter IS NULL"
	} else {
		query += " AND c.quarter = ?"
		args = append(args, *quarter)
	}
	return s.queryCharacteristics(ctx, "retrieve characteristics", query+" ORDER BY c.kepler_id, c.id", args...)
}

// DeleteCharacteristics removes every value of typeID.
func (s *SQLStore) DeleteCharacteristics(ctx context.Context, typeID int64) (int64, error) {
	return s.exec(ctx, "delete characteristics", "DELETE FROM characteristic WHERE type_id = ?", typeID)
}

// DeleteCharacteristicsForQuarter removes the values of typeID in quarter.
func (s *SQLStore) DeleteCharacteristicsForQuarter(ctx context.Context, typeID int64, quarter int) (int64, error) {
	return s.exec(ctx, "delete characteristics for quarter",
		"DELETE FROM characteristic WHERE type_id = ? AND quarter = ?", typeID, quarter)
}

// CharacteristicCount returns the number of stored values of typeID.
func (s *SQLStore) CharacteristicCount(ctx context.Context, typeID int64) (int64, error) {
	return s.count(ctx, "count characteristics", "SELECT COUNT(*) FROM characteristic WHERE type_id = ?", typeID)
}

func (s *SQLStore) exec(ctx context.Context, op, query string, args ...interface{}) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(query), args...)
	if err != nil {
		return 0, storageError(catalogerrors.CodeWriteFailed, op, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
