// Package batch runs change aggregations for a list of users.
//
// Every user passes the client's rate limit before any OSM request is made.
// Failures are collected per user; one user's failure never hides another
// user's result.
package batch

import "strings"

// ParseUsers splits a comma-separated user list. Entries are trimmed and
// empty entries dropped; order and duplicates are kept.
func ParseUsers(raw string) []string {
	users := []string{}
	for _, item := range strings.Split(raw, ",") {
		if name := strings.TrimSpace(item); name != "" {
			users = append(users, name)
		}
	}
	return users
}
