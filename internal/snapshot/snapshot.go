// Package snapshot persists sky group listings in object storage so that a
// cold partition cache can be filled without scanning the catalog database.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/golang/snappy"
	"github.com/rs/zerolog/log"

	"github.com/kepler-soc/kic/internal/cache"
	catalogerrors "github.com/kepler-soc/kic/internal/errors"
	"github.com/kepler-soc/kic/internal/storage"
	"github.com/kepler-soc/kic/pkg/types"
)

// FormatVersion is written into every snapshot. Snapshots with another
// version are treated as missing.
const FormatVersion = 1

const (
	keyPrefix = "skygroup-"
	keySuffix = ".json.sz"
)

// ErrNotFound is returned by Load when no usable snapshot exists.
var ErrNotFound = errors.New("snapshot: not found")

// envelope is the JSON document stored (snappy-compressed) per sky group.
type envelope struct {
	Version    int          `json:"version"`
	SkyGroupID int          `json:"sky_group_id"`
	CreatedAt  time.Time    `json:"created_at"`
	Kics       []*types.Kic `json:"kics"`
}

// Store reads and writes sky group snapshots.
type Store struct {
	objects storage.ObjectStorage
	prefix  string
}

// NewStore creates a snapshot store writing under prefix in objects.
func NewStore(objects storage.ObjectStorage, prefix string) *Store {
	return &Store{objects: objects, prefix: strings.Trim(prefix, "/")}
}

// Key returns the object key of the snapshot for skyGroupID.
func (s *Store) Key(skyGroupID int) string {
	return path.Join(s.prefix, fmt.Sprintf("%s%03d%s", keyPrefix, skyGroupID, keySuffix))
}

// Save writes the entries of one sky group.
func (s *Store) Save(ctx context.Context, skyGroupID int, kics []*types.Kic) error {
	payload, err := json.Marshal(envelope{
		Version:    FormatVersion,
		SkyGroupID: skyGroupID,
		CreatedAt:  time.Now().UTC(),
		Kics:       kics,
	})
	if err != nil {
		return catalogerrors.NewInternalError("snapshot: encode", err)
	}

	if err := s.objects.Put(ctx, s.Key(skyGroupID), snappy.Encode(nil, payload)); err != nil {
		return catalogerrors.NewStorageError(catalogerrors.CodeSnapshotFailed,
			fmt.Sprintf("snapshot: write sky group %d", skyGroupID), err)
	}
	return nil
}

// Load reads the entries of one sky group. It returns ErrNotFound when no
// snapshot exists or the stored one has a different format version.
func (s *Store) Load(ctx context.Context, skyGroupID int) ([]*types.Kic, error) {
	compressed, err := s.objects.Get(ctx, s.Key(skyGroupID))
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, catalogerrors.NewStorageError(catalogerrors.CodeSnapshotFailed,
			fmt.Sprintf("snapshot: read sky group %d", skyGroupID), err)
	}

	payload, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, catalogerrors.NewStorageError(catalogerrors.CodeSnapshotFailed,
			fmt.Sprintf("snapshot: decompress sky group %d", skyGroupID), err)
	}

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, catalogerrors.NewStorageError(catalogerrors.CodeSnapshotFailed,
			fmt.Sprintf("snapshot: decode sky group %d", skyGroupID), err)
	}
	if env.Version != FormatVersion || env.SkyGroupID != skyGroupID {
		return nil, ErrNotFound
	}
	return env.Kics, nil
}

// Delete removes the snapshot for skyGroupID, if any.
func (s *Store) Delete(ctx context.Context, skyGroupID int) error {
	if err := s.objects.Delete(ctx, s.Key(skyGroupID)); err != nil {
		return catalogerrors.NewStorageError(catalogerrors.CodeSnapshotFailed,
			fmt.Sprintf("snapshot: delete sky group %d", skyGroupID), err)
	}
	return nil
}

// List returns the sky groups that have a snapshot, ascending.
func (s *Store) List(ctx context.Context) ([]int, error) {
	keys, err := s.objects.List(ctx, s.prefix)
	if err != nil {
		return nil, catalogerrors.NewStorageError(catalogerrors.CodeSnapshotFailed, "snapshot: list", err)
	}

	var ids []int
	for _, key := range keys {
		name := path.Base(key)
		if !strings.HasPrefix(name, keyPrefix) || !strings.HasSuffix(name, keySuffix) {
			continue
		}
		id, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, keyPrefix), keySuffix))
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}

// ReadThrough wraps load so that sky groups are read from snapshots when
// one exists. On a miss the database is read and a snapshot written; a
// failed snapshot write is logged and does not fail the load. An unreadable
// snapshot falls back to the database.
func ReadThrough(s *Store, load cache.LoadFunc) cache.LoadFunc {
	return func(ctx context.Context, skyGroupID int) ([]*types.Kic, error) {
		kics, err := s.Load(ctx, skyGroupID)
		if err == nil {
			log.Debug().Int("sky_group_id", skyGroupID).Int("kics", len(kics)).Msg("snapshot: hit")
			return kics, nil
		}
		if !errors.Is(err, ErrNotFound) {
			log.Warn().Err(err).Int("sky_group_id", skyGroupID).Msg("snapshot: unreadable, loading from catalog")
		}

		kics, err = load(ctx, skyGroupID)
		if err != nil {
			return nil, err
		}
		if err := s.Save(ctx, skyGroupID, kics); err != nil {
			log.Warn().Err(err).Int("sky_group_id", skyGroupID).Msg("snapshot: write failed")
		}
		return kics, nil
	}
}
