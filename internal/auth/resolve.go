package auth

import "sort"

// AccessSet is the flattened authorization view of a user: the names of the
// assigned roles and the deduplicated union of all permission names reachable
// through them.
type AccessSet struct {
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// Resolve aggregates the user's eagerly loaded roles into an AccessSet.
// Duplicate names across roles collapse, and the output is sorted so identical
// input always yields identical output. Pure aggregation: no I/O, no errors;
// an empty role set yields empty sets.
func Resolve(u *User) AccessSet {
	roleSet := make(map[string]struct{}, len(u.Roles))
	permSet := make(map[string]struct{})
	for _, role := range u.Roles {
		roleSet[role.Name] = struct{}{}
		for _, perm := range role.Permissions {
			permSet[perm.Name] = struct{}{}
		}
	}
	return AccessSet{
		Roles:       sortedNames(roleSet),
		Permissions: sortedNames(permSet),
	}
}

func sortedNames(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
