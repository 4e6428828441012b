package assets

import (
	"encoding/json"

	"github.com/cespare/xxhash/v2"
)

// persistedSubset is the part of the document autosave tracks. Plans,
// personas and the other collections are saved by their own actions.
type persistedSubset struct {
	BrandFoundation      BrandFoundation      `json:"brandFoundation"`
	CoreMediaAssets      CoreMediaAssets      `json:"coreMediaAssets"`
	UnifiedProfileAssets UnifiedProfileAssets `json:"unifiedProfileAssets"`
}

// ContentHash fingerprints the autosave-tracked subset of doc.
func ContentHash(doc *Document) uint64 {
	if doc == nil {
		doc = &Document{}
	}
	raw, err := json.Marshal(persistedSubset{
		BrandFoundation:      doc.BrandFoundation,
		CoreMediaAssets:      doc.CoreMediaAssets,
		UnifiedProfileAssets: doc.UnifiedProfileAssets,
	})
	if err != nil {
		// Only strings and slices of plain structs; cannot fail.
		panic(err)
	}
	return xxhash.Sum64(raw)
}
