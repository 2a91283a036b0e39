package blood

import (
	"errors"
	"fmt"
)

// Type is one of the eight ABO/Rh blood groups.
type Type string

const (
	APos  Type = "A+"
	ANeg  Type = "A-"
	BPos  Type = "B+"
	BNeg  Type = "B-"
	ABPos Type = "AB+"
	ABNeg Type = "AB-"
	OPos  Type = "O+"
	ONeg  Type = "O-"
)

var ErrInvalidBloodType = errors.New("invalid blood type")

// All lists every valid type in a fixed order.
var All = []Type{APos, ANeg, BPos, BNeg, ABPos, ABNeg, OPos, ONeg}

// plasmaCompat is the plasma donation table, keyed donor -> recipients the
// donor may supply. Note this is the inverse of whole-blood compatibility
// in several cells: AB donors are universal plasma donors, O+ can supply
// only O+. The table is read in this one direction everywhere; callers
// must not invert it.
var plasmaCompat = map[Type][]Type{
	APos:  {APos, ANeg},
	ANeg:  {APos, ANeg, ABPos, ABNeg},
	BPos:  {BPos, BNeg},
	BNeg:  {BPos, BNeg, ABPos, ABNeg},
	ABPos: {APos, ANeg, BPos, BNeg, ABPos, ABNeg, OPos, ONeg},
	ABNeg: {APos, ANeg, BPos, BNeg, ABPos, ABNeg, OPos, ONeg},
	OPos:  {OPos},
	ONeg:  {OPos, ONeg},
}

// Parse validates a raw blood group string.
func Parse(s string) (Type, error) {
	t := Type(s)
	if _, ok := plasmaCompat[t]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidBloodType, s)
	}
	return t, nil
}

// CanDonateTo reports whether a donor of type donor may give plasma to a
// recipient of type recipient. Unknown types are simply not compatible;
// public entry points reject them via Parse before reaching here.
func CanDonateTo(donor, recipient Type) bool {
	for _, r := range plasmaCompat[donor] {
		if r == recipient {
			return true
		}
	}
	return false
}
