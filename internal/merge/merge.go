// Package merge implements the deep-union merge used to layer a store
// file's on-disk content underneath the in-memory content collected
// during a run. It is adapted from OPA's internal/merge.InterfaceMaps,
// but diverges from it in one deliberate way: OPA's merge rejects a run
// (returns ok=false) when two leaves conflict, because OPA merges two
// independently-authored documents that are supposed to agree. Trident's
// store merge instead always prefers the in-memory value on a leaf
// conflict, because the in-memory side is always the newer data and the
// on-disk side is only there to preserve history from prior runs.
package merge

// Documents recursively merges src under dst, mutating and returning dst.
// For every key present in src:
//   - if dst does not have the key, the value is copied in verbatim
//   - if both sides hold a map, the two maps are merged recursively
//   - otherwise dst's existing value wins and src's is discarded
func Documents(dst, src map[string]interface{}) map[string]interface{} {
	if dst == nil {
		dst = map[string]interface{}{}
	}

	for key, srcVal := range src {
		dstVal, exists := dst[key]
		if !exists {
			dst[key] = srcVal
			continue
		}

		dstMap, dstIsMap := dstVal.(map[string]interface{})
		srcMap, srcIsMap := srcVal.(map[string]interface{})
		if dstIsMap && srcIsMap {
			dst[key] = Documents(dstMap, srcMap)
			continue
		}

		// leaf conflict: dst (in-memory) wins, src (on-disk) is dropped.
	}

	return dst
}
