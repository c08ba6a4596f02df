package syncer

import "velomarkt/catalogsync/internal/catalog"

// DiffURLs computes the per-category reconciliation between the stored
// URL set and the URLs found this run: added = found - stored,
// removed = stored - found. Order follows the input slices.
func DiffURLs(stored, found []string) (added, removed []string) {
	storedSet := make(map[string]bool, len(stored))
	for _, u := range stored {
		storedSet[u] = true
	}
	foundSet := make(map[string]bool, len(found))
	for _, u := range found {
		foundSet[u] = true
	}

	for _, u := range found {
		if !storedSet[u] {
			added = append(added, u)
		}
	}
	for _, u := range stored {
		if !foundSet[u] {
			removed = append(removed, u)
		}
	}
	return added, removed
}

// Changes is the record-level diff between two snapshots of a category.
type Changes struct {
	Added   []catalog.ProductRecord
	Removed []catalog.ProductRecord
	Updated []catalog.ProductRecord
}

// CompareRecords diffs two catalog snapshots by URL. A product present
// in both counts as updated when its title or either raw price moved.
func CompareRecords(old, new []catalog.ProductRecord) Changes {
	oldByURL := make(map[string]catalog.ProductRecord, len(old))
	for _, r := range old {
		oldByURL[r.URL] = r
	}
	newByURL := make(map[string]catalog.ProductRecord, len(new))
	for _, r := range new {
		newByURL[r.URL] = r
	}

	var changes Changes
	for _, r := range new {
		prev, ok := oldByURL[r.URL]
		if !ok {
			changes.Added = append(changes.Added, r)
			continue
		}
		if prev.Title != r.Title ||
			prev.CurrentPriceRaw != r.CurrentPriceRaw ||
			prev.OriginalPriceRaw != r.OriginalPriceRaw {
			changes.Updated = append(changes.Updated, r)
		}
	}
	for _, r := range old {
		if _, ok := newByURL[r.URL]; !ok {
			changes.Removed = append(changes.Removed, r)
		}
	}
	return changes
}
