package utils

// Find looks up the data for each id in an arena map. An empty ids slice
// is treated as "all data" and returns data unchanged. IDs with no entry
// in dataMap are reported back in failedIDs rather than causing an
// error, matching query endpoints that tolerate partially stale
// references.
func Find[K comparable, T any](dataMap map[K]T, data []T, ids []K) (okData []T, failedIDs []K) {
	if len(ids) == 0 {
		return data, nil
	}
	okData = make([]T, 0, len(ids))
	failedIDs = make([]K, 0, len(ids))
	for _, id := range ids {
		if d, ok := dataMap[id]; ok {
			okData = append(okData, d)
		} else {
			failedIDs = append(failedIDs, id)
		}
	}
	return
}
