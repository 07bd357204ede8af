package domain

// BranchKey identifies one shared cache directory. Profiles with the same key
// share downloads and serialize updates to that directory.
type BranchKey struct {
	AppID    string
	Branch   string
	Password string
}

func (k BranchKey) String() string {
	if k.Branch == "" {
		return k.AppID
	}
	return k.AppID + "_" + k.Branch
}

// Equal ignores the branch password.
func (k BranchKey) Equal(o BranchKey) bool {
	return k.AppID == o.AppID && k.Branch == o.Branch
}
