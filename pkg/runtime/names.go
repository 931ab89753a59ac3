package runtime

import "strings"

// ContainerNamePrefix marks containers owned by hutch. The reconciler
// enumerates by this prefix at start-up.
const ContainerNamePrefix = "claude-"

// ContainerNameForSession derives the deterministic container name for a
// session key: every character outside [A-Za-z0-9-] becomes '-', then the
// prefix is applied. Total and pure; equal keys always map to equal names.
func ContainerNameForSession(sessionKey string) string {
	var b strings.Builder
	b.Grow(len(ContainerNamePrefix) + len(sessionKey))
	b.WriteString(ContainerNamePrefix)
	for _, r := range sessionKey {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return b.String()
}

// SessionKeyFromContainerName inverts ContainerNameForSession by stripping
// the prefix. ok is false for names that are not ours. Round-trips exactly on
// any name beginning with the prefix, including the bare prefix itself.
func SessionKeyFromContainerName(name string) (string, bool) {
	if !strings.HasPrefix(name, ContainerNamePrefix) {
		return "", false
	}
	return strings.TrimPrefix(name, ContainerNamePrefix), true
}
