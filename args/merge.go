// Package args resolves the final connect-argument map for a session
// from the descriptor decrypted out of the token, the operator-configured
// per-protocol defaults, and the subset of query-string values the
// operator has allow-listed as safe to accept unencrypted.
package args

// Policy is the read-only-at-runtime argument policy for one protocol
// type, taken from configuration.
type Policy struct {
	// Defaults is applied where the descriptor omits a key.
	Defaults map[string]string
	// Unencrypted is the allow-list of keys the query string may
	// override.
	Unencrypted map[string]string // presence-only; values unused
}

// Merge resolves arguments for one session.
//
// Order matters:
//  1. For each key in policy.Defaults absent from arguments, insert the
//     default.
//  2. For each key present in policy.Unencrypted whose query value is
//     present and non-blank, overwrite arguments[key].
//
// Keys in neither list are kept from the descriptor unchanged. The
// input map is not mutated; a new map is returned.
func Merge(descriptorArgs map[string]string, policy Policy, query map[string]string) map[string]string {
	merged := make(map[string]string, len(descriptorArgs)+len(policy.Defaults))
	for k, v := range descriptorArgs {
		merged[k] = v
	}
	for k, v := range policy.Defaults {
		if _, ok := merged[k]; !ok {
			merged[k] = v
		}
	}
	for k := range policy.Unencrypted {
		if v, ok := query[k]; ok && v != "" {
			merged[k] = v
		}
	}
	return merged
}
