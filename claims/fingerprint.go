package claims

// FingerprintKey is the part of a region that must match for two regions to
// be merged: who owns it, who may use it, and how it is protected.
type FingerprintKey struct {
	Owners  PrincipalSet
	Members PrincipalSet
	Flags   Flags
}

// Fingerprint builds the comparison key of r. Identity flags (block material,
// merge history, display name, home) are stripped.
func Fingerprint(r *Region) FingerprintKey {
	flags := make(Flags, len(r.Flags))
	for k, v := range r.Flags {
		if IsIdentityFlag(k) {
			continue
		}
		flags[k] = v
	}
	return FingerprintKey{
		Owners:  r.Owners,
		Members: r.Members,
		Flags:   flags,
	}
}

// Equal reports whether two keys describe the same owners, members and flags.
func (k FingerprintKey) Equal(o FingerprintKey) bool {
	return k.Owners.Equal(o.Owners) &&
		k.Members.Equal(o.Members) &&
		k.Flags.Equal(o.Flags)
}

// Equivalent reports whether a and b may be merged. Regions with a parent are
// never equivalent to anything.
func Equivalent(a, b *Region) bool {
	if a == nil || b == nil {
		return false
	}
	if a.Parent != "" || b.Parent != "" {
		return false
	}
	return Fingerprint(a).Equal(Fingerprint(b))
}
