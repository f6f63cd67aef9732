package expr

// permissionRank orders GitHub-style permission levels from lowest to
// highest, so hasMinPermission can compare by rank rather than string
// equality.
var permissionRank = map[string]int{
	"none":     0,
	"read":     1,
	"triage":   2,
	"write":    3,
	"maintain": 4,
	"admin":    5,
}

// isOwner reports whether the PR author's association is OWNER.
func isOwner(pr PRInfo) bool {
	return pr.AuthorAssociation == "OWNER"
}

// isMember reports whether the PR author's association indicates
// org/collaborator standing rather than an outside contributor.
func isMember(pr PRInfo) bool {
	switch pr.AuthorAssociation {
	case "OWNER", "MEMBER", "COLLABORATOR":
		return true
	default:
		return false
	}
}

// hasMinPermission reports whether the PR author's permission level meets
// or exceeds level. An unrecognized level on either side is treated as
// "none" (rank 0), the conservative default.
func hasMinPermission(pr PRInfo, level string) bool {
	have := permissionRank[pr.AuthorPermission]
	want := permissionRank[level]
	return have >= want
}
