package resolve

import (
	"sort"
	"strings"

	"github.com/systmms/rotavault/internal/format"
)

// PairNames picks the key names an injected access/secret credential pair
// should use inside a blob. Explicitly resolved names always win. Failing
// those, existing keys are searched case-insensitively for ACCESS_KEY /
// SECRET_KEY suffixes so the secret owner's naming convention is kept.
// Failing that too, names are synthesized per format.
//
// The suffix search is a best-effort heuristic, not a contract: unusual
// key names (say, OLD_ACCESS_KEY_BACKUP) will not be recognized.
func PairNames(res Resolution, existing map[string]string) (access, secret string) {
	access, secret = res.AccessKeyName, res.SecretKeyName
	if access != "" && secret != "" {
		return access, secret
	}

	detectedAccess, detectedSecret := detectPairNames(existing)
	if access == "" {
		access = detectedAccess
	}
	if secret == "" {
		secret = detectedSecret
	}

	if access == "" || secret == "" {
		synthAccess, synthSecret := synthesizePairNames(res.Format)
		if access == "" {
			access = synthAccess
		}
		if secret == "" {
			secret = synthSecret
		}
	}
	return access, secret
}

// detectPairNames scans existing keys for the conventional suffixes. A key
// like AWS_SECRET_ACCESS_KEY ends in ACCESS_KEY too, so anything
// mentioning SECRET is claimed by the secret slot first.
func detectPairNames(existing map[string]string) (access, secret string) {
	keys := make([]string, 0, len(existing))
	for k := range existing {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		upper := strings.ToUpper(k)
		switch {
		case strings.Contains(upper, "SECRET") &&
			(strings.HasSuffix(upper, "SECRET_KEY") || strings.HasSuffix(upper, "ACCESS_KEY")):
			if secret == "" {
				secret = k
			}
		case strings.HasSuffix(upper, "ACCESS_KEY"):
			if access == "" {
				access = k
			}
		}
	}
	return access, secret
}

func synthesizePairNames(f format.Format) (access, secret string) {
	if f == format.JSON {
		return "S3_ACCESS_KEY", "S3_SECRET_KEY"
	}
	return "AWS_ACCESS_KEY", "AWS_SECRET_KEY"
}
