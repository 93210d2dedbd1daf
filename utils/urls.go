package utils

func IntersectStrings(a, b []string) []string {
	set := make(map[string]struct{}, len(b))
	for _, x := range b {
		set[x] = struct{}{}
	}
	out := make([]string, 0)
	for _, x := range a {
		if _, ok := set[x]; ok {
			out = append(out, x)
		}
	}
	return out
}

// MergeImageUrlsArrays drops toRemove from oldUrls and appends toAdd,
// keeping order and skipping duplicates.
func MergeImageUrlsArrays(oldUrls, toRemove, toAdd []string) []string {
	removeSet := make(map[string]struct{}, len(toRemove))
	for _, u := range toRemove {
		removeSet[u] = struct{}{}
	}

	final := make([]string, 0, len(oldUrls)+len(toAdd))
	exists := make(map[string]struct{})

	for _, u := range oldUrls {
		if _, shouldRemove := removeSet[u]; !shouldRemove {
			final = append(final, u)
			exists[u] = struct{}{}
		}
	}
	for _, u := range toAdd {
		if _, already := exists[u]; !already {
			final = append(final, u)
			exists[u] = struct{}{}
		}
	}
	return final
}
