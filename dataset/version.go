package dataset

import "fmt"

// Version identifies one published revision of the reference database:
// a build number plus a patch number within that build.
type Version struct {
	Build int `json:"buildNumber"`
	Patch int `json:"patchNumber"`
}

// Compare orders versions by build number first, then patch number.
// Returns -1, 0 or 1.
func (v Version) Compare(other Version) int {
	if v.Build != other.Build {
		if v.Build < other.Build {
			return -1
		}
		return 1
	}
	if v.Patch != other.Patch {
		if v.Patch < other.Patch {
			return -1
		}
		return 1
	}
	return 0
}

// Newer reports whether v is strictly newer than other.
func (v Version) Newer(other Version) bool {
	return v.Compare(other) > 0
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Build, v.Patch)
}
