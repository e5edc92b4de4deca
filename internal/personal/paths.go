// Package personal provisions and removes the home space of users and groups.
package personal

import "nakamura/internal/content"

// Roots of the user and group home trees.
const (
	UserHomeRoot  = "/_user"
	GroupHomeRoot = "/_group"
)

const (
	privateElement  = "private"
	publicElement   = "public"
	profileElement  = "authprofile"
	messagesElement = "messages"
	outboxElement   = "outbox"
)

// HomePath returns the home path of an authorizable. Homes are sharded by
// the first one and two characters of the ID, so "carl" lives at
// /_user/c/ca/carl.
func HomePath(id string, isGroup bool) string {
	root := UserHomeRoot
	if isGroup {
		root = GroupHomeRoot
	}
	return root + "/" + shard(id, 1) + "/" + shard(id, 2) + "/" + id
}

// PrivatePath returns the owner-only subtree of a home.
func PrivatePath(id string, isGroup bool) string {
	return content.Join(HomePath(id, isGroup), privateElement)
}

// PublicPath returns the world-readable subtree of a home.
func PublicPath(id string, isGroup bool) string {
	return content.Join(HomePath(id, isGroup), publicElement)
}

// ProfilePath returns the profile node of a home.
func ProfilePath(id string, isGroup bool) string {
	return content.Join(PublicPath(id, isGroup), profileElement)
}

// MessageStorePath returns the node holding a user's messages.
func MessageStorePath(id string) string {
	return content.Join(PrivatePath(id, false), messagesElement)
}

// OutboxPath returns the node holding a user's undelivered messages.
func OutboxPath(id string) string {
	return content.Join(MessageStorePath(id), outboxElement)
}

func shard(id string, n int) string {
	r := []rune(id)
	if len(r) >= n {
		return string(r[:n])
	}
	for len(r) < n {
		r = append(r, '_')
	}
	return string(r)
}
