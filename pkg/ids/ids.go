package ids

import "github.com/oklog/ulid/v2"

// New returns a fresh entity id. ULIDs are ordered by create time, which
// keeps ids from the same process roughly sorted and makes them stable
// tie-breakers for query ordering.
func New() string {
	return ulid.Make().String()
}
