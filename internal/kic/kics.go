package kic

import (
	"context"

	"github.com/kepler-soc/kic/internal/query/executor"
	"github.com/kepler-soc/kic/pkg/types"
)

// CreateKics stores kics and drops the cached listings of the sky groups
// they belong to.
func (s *Service) CreateKics(ctx context.Context, kics []*types.Kic) error {
	if err := s.store.CreateKics(ctx, kics); err != nil {
		return err
	}
	seen := make(map[int]struct{})
	for _, k := range kics {
		if k == nil {
			continue
		}
		if _, ok := seen[k.SkyGroupID]; ok {
			continue
		}
		seen[k.SkyGroupID] = struct{}{}
		if err := s.InvalidateSkyGroup(ctx, k.SkyGroupID); err != nil {
			return err
		}
	}
	return nil
}

// RetrieveKic returns one entry, or a NotFound error.
func (s *Service) RetrieveKic(ctx context.Context, keplerID int) (*types.Kic, error) {
	return s.store.RetrieveKic(ctx, keplerID)
}

// RetrieveKics resolves ids positionally; missing ids leave nil slots.
func (s *Service) RetrieveKics(ctx context.Context, ids []int) ([]*types.Kic, error) {
	return s.executor.FetchKics(ctx, ids)
}

// RetrieveKicMap resolves ids to entries keyed by Kepler id.
func (s *Service) RetrieveKicMap(ctx context.Context, ids []int) (map[int]*types.Kic, error) {
	return s.executor.FetchKicMap(ctx, ids)
}

// RetrieveKicsForSkyGroup returns the entries of one sky group, ordered by
// Kepler id, through the listing source.
func (s *Service) RetrieveKicsForSkyGroup(ctx context.Context, skyGroupID int) ([]*types.Kic, error) {
	l, err := s.listings.Listing(ctx, skyGroupID)
	if err != nil {
		return nil, err
	}
	return l.Kics(), nil
}

// RetrieveKicsForCCD returns the entries that fall on a CCD channel during
// an observing season. An unknown combination is a NotFound error.
func (s *Service) RetrieveKicsForCCD(ctx context.Context, ccdModule, ccdOutput, observingSeason int) ([]*types.Kic, error) {
	id, err := s.store.ResolveSkyGroupID(ctx, ccdModule, ccdOutput, observingSeason)
	if err != nil {
		return nil, err
	}
	return s.RetrieveKicsForSkyGroup(ctx, id)
}

// RetrieveKicsForSkyGroupIDRange returns the entries of one sky group with
// ids in [minKeplerID, maxKeplerID].
func (s *Service) RetrieveKicsForSkyGroupIDRange(ctx context.Context, skyGroupID, minKeplerID, maxKeplerID int) ([]*types.Kic, error) {
	return s.store.RetrieveKicsForSkyGroupIDRange(ctx, skyGroupID, minKeplerID, maxKeplerID)
}

// RetrieveKicsByIDRange returns the entries with ids in [minKeplerID, maxKeplerID].
func (s *Service) RetrieveKicsByIDRange(ctx context.Context, minKeplerID, maxKeplerID int) ([]*types.Kic, error) {
	return s.store.RetrieveKicsByIDRange(ctx, minKeplerID, maxKeplerID)
}

// RetrieveKicsByMagnitude returns the entries with Kepler magnitude in [minMag, maxMag].
func (s *Service) RetrieveKicsByMagnitude(ctx context.Context, minMag, maxMag float64) ([]*types.Kic, error) {
	return s.store.RetrieveKicsByMagnitude(ctx, minMag, maxMag)
}

// RetrieveKeplerIDRange returns the smallest and largest stored ids.
func (s *Service) RetrieveKeplerIDRange(ctx context.Context) (int, int, error) {
	return s.store.RetrieveKeplerIDRange(ctx)
}

// Exists reports whether keplerID is stored.
func (s *Service) Exists(ctx context.Context, keplerID int) (bool, error) {
	return s.store.Exists(ctx, keplerID)
}

// Count returns the number of stored entries.
func (s *Service) Count(ctx context.Context) (int64, error) {
	return s.store.Count(ctx)
}

// VisibleCount returns the number of entries on the field of view.
func (s *Service) VisibleCount(ctx context.Context) (int64, error) {
	return s.store.VisibleCount(ctx)
}

// DeleteAllKics removes every entry and drops all cached listings.
func (s *Service) DeleteAllKics(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteAllKics(ctx)
	if err != nil {
		return 0, err
	}
	s.listings.InvalidateAll()
	return n, nil
}

type skyGroupAssignment struct {
	keplerID   int
	skyGroupID int
}

// RetrieveSkyGroupIDsForKeplerIDs maps ids to their sky group, chunked to
// the executor's chunk size. Unknown ids are absent.
func (s *Service) RetrieveSkyGroupIDsForKeplerIDs(ctx context.Context, ids []int) (map[int]int, error) {
	assigned, err := executor.FetchBatched(ctx, ids, s.executor.MaxExpressions(),
		func(a skyGroupAssignment) int { return a.keplerID },
		func(ctx context.Context, chunk []int) ([]skyGroupAssignment, error) {
			m, err := s.store.RetrieveSkyGroupIDsForKeplerIDs(ctx, chunk)
			if err != nil {
				return nil, err
			}
			out := make([]skyGroupAssignment, 0, len(m))
			for id, sg := range m {
				out = append(out, skyGroupAssignment{keplerID: id, skyGroupID: sg})
			}
			return out, nil
		})
	if err != nil {
		return nil, err
	}
	result := make(map[int]int, len(assigned))
	for id, a := range assigned {
		result[id] = a.skyGroupID
	}
	return result, nil
}

// CreateSkyGroups stores sky group definitions.
func (s *Service) CreateSkyGroups(ctx context.Context, groups []types.SkyGroup) error {
	return s.store.CreateSkyGroups(ctx, groups)
}

// RetrieveSkyGroup returns one sky group, or a NotFound error.
func (s *Service) RetrieveSkyGroup(ctx context.Context, skyGroupID int) (types.SkyGroup, error) {
	return s.store.RetrieveSkyGroup(ctx, skyGroupID)
}

// RetrieveSkyGroups returns every stored sky group.
func (s *Service) RetrieveSkyGroups(ctx context.Context) ([]types.SkyGroup, error) {
	return s.store.RetrieveSkyGroups(ctx)
}

// ResolveSkyGroupID maps a CCD channel and observing season to a sky group id.
func (s *Service) ResolveSkyGroupID(ctx context.Context, ccdModule, ccdOutput, observingSeason int) (int, error) {
	return s.store.ResolveSkyGroupID(ctx, ccdModule, ccdOutput, observingSeason)
}

// RetrieveVisibleSkyGroupIDs returns the sky group ids that hold at least one entry.
func (s *Service) RetrieveVisibleSkyGroupIDs(ctx context.Context) ([]int, error) {
	return s.store.RetrieveVisibleSkyGroupIDs(ctx)
}
