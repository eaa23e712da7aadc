package usecase

import (
	"maps"
	"slices"
	"time"

	"github.com/fekuna/omnipos-sync-service/internal/remote"
)

// snapshot buffers fetched objects by remote ID so cross references can be
// resolved before anything is written.
type snapshot struct {
	categories map[string]remote.CatalogObject
	images     map[string]remote.CatalogObject
	items      map[string]remote.CatalogObject
	variations map[string]remote.CatalogObject
	// deleted holds deletion markers by object type.
	deleted map[string][]string

	latest time.Time
	count  int
}

func newSnapshot() *snapshot {
	return &snapshot{
		categories: map[string]remote.CatalogObject{},
		images:     map[string]remote.CatalogObject{},
		items:      map[string]remote.CatalogObject{},
		variations: map[string]remote.CatalogObject{},
		deleted:    map[string][]string{},
	}
}

func (s *snapshot) addPage(page *remote.CatalogPage) {
	if page.LatestTime.After(s.latest) {
		s.latest = page.LatestTime
	}
	s.count += len(page.Objects)
	for _, obj := range page.Objects {
		s.add(obj)
	}
}

func (s *snapshot) add(obj remote.CatalogObject) {
	if obj.IsDeleted {
		s.deleted[obj.Type] = append(s.deleted[obj.Type], obj.ID)
		return
	}
	switch obj.Type {
	case remote.ObjectTypeCategory:
		s.categories[obj.ID] = obj
	case remote.ObjectTypeImage:
		s.images[obj.ID] = obj
	case remote.ObjectTypeItem:
		s.items[obj.ID] = obj
		if obj.ItemData == nil {
			return
		}
		for _, v := range obj.ItemData.Variations {
			if v.Type == "" {
				v.Type = remote.ObjectTypeItemVariation
			}
			if v.ItemVariationData != nil && v.ItemVariationData.ItemID == "" {
				data := *v.ItemVariationData
				data.ItemID = obj.ID
				v.ItemVariationData = &data
			}
			s.add(v)
		}
	case remote.ObjectTypeItemVariation:
		s.variations[obj.ID] = obj
	}
}

func sortedKeys(m map[string]remote.CatalogObject) []string {
	return slices.Sorted(maps.Keys(m))
}
