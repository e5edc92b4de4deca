package acl

// FullControl grants every capability. Owners get it on each location of
// their home.
func FullControl() []Grant {
	grants := make([]Grant, len(Capabilities))
	for i, c := range Capabilities {
		grants[i] = Granted(c)
	}
	return grants
}

// ReadOnly allows read and denies write. Applied to anonymous and everyone
// on home, public and profile locations.
func ReadOnly() []Grant {
	return []Grant{Granted(Read), Denied(Write)}
}

// NoAccess denies read and write. Applied to anonymous and everyone on the
// private location.
func NoAccess() []Grant {
	return []Grant{Denied(Read), Denied(Write)}
}
