package model

import "strings"

// remoteUserPrefix tags reaction user ids that originate from the remote
// host rather than a local account. Merge logic keys off this prefix so
// remote removals propagate without clobbering local-only reactions.
const remoteUserPrefix = "github:"

// Reactions maps an emoji key to the set of user ids who reacted with it.
// Invariant: no emoji key maps to an empty set; empty sets are deleted.
type Reactions map[string][]string

// RemoteUserID returns the tagged reaction user id for a remote login.
func RemoteUserID(login string) string {
	return remoteUserPrefix + login
}

// IsRemoteUserID reports whether a reaction user id is remote-sourced.
func IsRemoteUserID(uid string) bool {
	return strings.HasPrefix(uid, remoteUserPrefix)
}

// Clone returns a deep copy. A nil receiver yields an empty, non-nil map so
// callers can mutate the result.
func (r Reactions) Clone() Reactions {
	out := make(Reactions, len(r))
	for emoji, users := range r {
		out[emoji] = append([]string(nil), users...)
	}
	return out
}

// Equal reports whether two reaction maps hold the same users per emoji,
// ignoring order.
func (r Reactions) Equal(other Reactions) bool {
	if len(r) != len(other) {
		return false
	}
	for emoji, users := range r {
		otherUsers, ok := other[emoji]
		if !ok || len(users) != len(otherUsers) {
			return false
		}
		seen := make(map[string]bool, len(otherUsers))
		for _, u := range otherUsers {
			seen[u] = true
		}
		for _, u := range users {
			if !seen[u] {
				return false
			}
		}
	}
	return true
}
