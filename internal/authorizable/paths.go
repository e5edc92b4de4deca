package authorizable

import (
	"strings"
	"unicode"
)

// User-manager paths. Creation requests target the exact paths, requests
// about an existing authorizable target paths below the prefixes.
const (
	UserPath    = "/system/userManager/user"
	GroupPath   = "/system/userManager/group"
	UserPrefix  = UserPath + "/"
	GroupPrefix = GroupPath + "/"

	membersElement = "members"
)

// PathFor returns the user-manager path of an authorizable.
func PathFor(id string, isGroup bool) string {
	if isGroup {
		return GroupPrefix + id
	}
	return UserPrefix + id
}

// PropertyPath returns the user-manager path of one authorizable property.
func PropertyPath(id string, isGroup bool, name string) string {
	return PathFor(id, isGroup) + "/" + name
}

// MembersPath returns the path recording a group's membership.
func MembersPath(groupID string) string {
	return PathFor(groupID, true) + "/" + membersElement
}

// ParsePath splits a user-manager path into the authorizable ID and the
// remainder below it. ok is false for paths outside the user manager.
func ParsePath(path string) (id string, isGroup bool, rest string, ok bool) {
	var tail string
	switch {
	case strings.HasPrefix(path, UserPrefix):
		tail = strings.TrimPrefix(path, UserPrefix)
	case strings.HasPrefix(path, GroupPrefix):
		tail = strings.TrimPrefix(path, GroupPrefix)
		isGroup = true
	default:
		return "", false, "", false
	}

	id, rest, _ = strings.Cut(tail, "/")
	if id == "" {
		return "", false, "", false
	}
	return id, isGroup, rest, true
}

// IsGroupChange reports whether path denotes a change to a group as a whole:
// the group's own path or its membership path.
func IsGroupChange(path string) bool {
	_, isGroup, rest, ok := ParsePath(path)
	if !ok || !isGroup {
		return false
	}
	return rest == "" || rest == membersElement
}

// ValidateID checks that id can name an authorizable.
// IDs are 1-255 characters of letters, digits, '.', '-', '_' or '@'.
func ValidateID(id string) error {
	if id == "" || len(id) > 255 {
		return ErrInvalidID
	}
	for _, r := range id {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			continue
		}
		switch r {
		case '.', '-', '_', '@':
			continue
		}
		return ErrInvalidID
	}
	if id == "." || id == ".." {
		return ErrInvalidID
	}
	return nil
}
