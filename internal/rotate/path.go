package rotate

import "strings"

// NormalizePath turns however the caller spelled a secret path into the
// canonical KV v2 API path: "<mount>/data/<relative path>". Known mounts
// (kv, secret) are kept; anything else is assumed to live under kv. A
// "data" segment already present is not doubled.
func NormalizePath(path string) string {
	p := strings.Trim(path, "/")
	mount := "kv"
	for _, m := range []string{"kv", "secret"} {
		if p == m || strings.HasPrefix(p, m+"/") {
			mount = m
			p = strings.TrimPrefix(strings.TrimPrefix(p, m), "/")
			break
		}
	}
	if p == "data" || strings.HasPrefix(p, "data/") {
		p = strings.TrimPrefix(strings.TrimPrefix(p, "data"), "/")
	}
	if p == "" {
		return mount + "/data"
	}
	return mount + "/data/" + p
}
