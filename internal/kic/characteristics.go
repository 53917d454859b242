package kic

import (
	"context"

	catalogerrors "github.com/kepler-soc/kic/internal/errors"
	"github.com/kepler-soc/kic/internal/query/executor"
	"github.com/kepler-soc/kic/pkg/types"
)

// CreateCharacteristicType registers t, fills in its id and adds it to the
// type cache.
func (s *Service) CreateCharacteristicType(ctx context.Context, t *types.CharacteristicType) error {
	if err := s.store.CreateCharacteristicType(ctx, t); err != nil {
		return err
	}
	s.typesMu.Lock()
	s.typesByName[t.Name] = *t
	s.typesMu.Unlock()
	return nil
}

// RetrieveCharacteristicType returns the type registered under name. The
// type cache is reloaded from storage on a miss.
func (s *Service) RetrieveCharacteristicType(ctx context.Context, name string) (types.CharacteristicType, error) {
	s.typesMu.RLock()
	t, ok := s.typesByName[name]
	s.typesMu.RUnlock()
	if ok {
		return t, nil
	}

	if _, err := s.reloadTypes(ctx); err != nil {
		return types.CharacteristicType{}, err
	}
	s.typesMu.RLock()
	t, ok = s.typesByName[name]
	s.typesMu.RUnlock()
	if !ok {
		return types.CharacteristicType{}, catalogerrors.NewNotFoundError(catalogerrors.CodeCharacteristicNotFound,
			"kic: no characteristic type "+name)
	}
	return t, nil
}

// RetrieveCharacteristicTypes returns every registered type and refreshes
// the type cache.
func (s *Service) RetrieveCharacteristicTypes(ctx context.Context) ([]types.CharacteristicType, error) {
	return s.reloadTypes(ctx)
}

func (s *Service) reloadTypes(ctx context.Context) ([]types.CharacteristicType, error) {
	all, err := s.store.RetrieveCharacteristicTypes(ctx)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]types.CharacteristicType, len(all))
	for _, t := range all {
		byName[t.Name] = t
	}
	s.typesMu.Lock()
	s.typesByName = byName
	s.typesMu.Unlock()
	return all, nil
}

// CreateCharacteristics stores values. Every value must carry a registered type.
func (s *Service) CreateCharacteristics(ctx context.Context, values []*types.Characteristic) error {
	return s.store.CreateCharacteristics(ctx, values)
}

// RetrieveCharacteristic returns the current value of one type for one star.
func (s *Service) RetrieveCharacteristic(ctx context.Context, keplerID int, typeID int64) (*types.Characteristic, error) {
	return s.store.RetrieveCharacteristic(ctx, keplerID, typeID)
}

// RetrieveCharacteristicMap returns the current values for one star keyed by
// type name.
func (s *Service) RetrieveCharacteristicMap(ctx context.Context, keplerID int) (map[string]float64, error) {
	maps, err := s.RetrieveCharacteristicMaps(ctx, []int{keplerID})
	if err != nil {
		return nil, err
	}
	if m, ok := maps[keplerID]; ok {
		return m, nil
	}
	return map[string]float64{}, nil
}

// RetrieveCharacteristicMaps returns the current values for each id keyed
// by type name. Ids without values are absent. Lookups are chunked to the
// executor's chunk size.
func (s *Service) RetrieveCharacteristicMaps(ctx context.Context, ids []int) (map[int]map[string]float64, error) {
	result := make(map[int]map[string]float64)
	latest := make(map[int]map[string]int64)
	for _, chunk := range executor.Chunk(ids, s.executor.MaxExpressions()) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		values, err := s.store.RetrieveCharacteristicsForKeplerIDs(ctx, chunk)
		if err != nil {
			return nil, err
		}
		foldCharacteristics(result, latest, values)
	}
	return result, nil
}

// RetrieveCharacteristicMapsForSkyGroup returns the current values for every
// star in a sky group.
func (s *Service) RetrieveCharacteristicMapsForSkyGroup(ctx context.Context, skyGroupID int) (map[int]map[string]float64, error) {
	values, err := s.store.RetrieveCharacteristicsForSkyGroup(ctx, skyGroupID)
	if err != nil {
		return nil, err
	}
	result := make(map[int]map[string]float64)
	foldCharacteristics(result, make(map[int]map[string]int64), values)
	return result, nil
}

// foldCharacteristics keeps, per star and type, the value with the highest id.
func foldCharacteristics(result map[int]map[string]float64, latest map[int]map[string]int64, values []*types.Characteristic) {
	for _, c := range values {
		if c == nil {
			continue
		}
		ids, ok := latest[c.KeplerID]
		if !ok {
			ids = make(map[string]int64)
			latest[c.KeplerID] = ids
			result[c.KeplerID] = make(map[string]float64)
		}
		if prev, seen := ids[c.Type.Name]; seen && prev > c.ID {
			continue
		}
		ids[c.Type.Name] = c.ID
		result[c.KeplerID][c.Type.Name] = c.Value
	}
}

// RetrieveCharacteristics returns the values of one type in a sky group.
// A nil quarter selects values not tied to a quarter.
func (s *Service) RetrieveCharacteristics(ctx context.Context, typeID int64, skyGroupID int, quarter *int) ([]*types.Characteristic, error) {
	return s.store.RetrieveCharacteristics(ctx, typeID, skyGroupID, quarter)
}

// DeleteCharacteristics removes every value of one type.
func (s *Service) DeleteCharacteristics(ctx context.Context, typeID int64) (int64, error) {
	return s.store.DeleteCharacteristics(ctx, typeID)
}

// DeleteCharacteristicsForQuarter removes the values of one type for one quarter.
func (s *Service) DeleteCharacteristicsForQuarter(ctx context.Context, typeID int64, quarter int) (int64, error) {
	if quarter < 0 {
		return 0, catalogerrors.InvalidArgumentf("kic: quarter must not be negative, got %d", quarter)
	}
	return s.store.DeleteCharacteristicsForQuarter(ctx, typeID, quarter)
}

// CharacteristicCount returns the number of values of one type.
func (s *Service) CharacteristicCount(ctx context.Context, typeID int64) (int64, error) {
	return s.store.CharacteristicCount(ctx, typeID)
}
