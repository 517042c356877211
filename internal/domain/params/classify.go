package params

import "github.com/huguei/zonemaster-backend/internal/domain/model"

// Classify derives the delegation class from canonical parameters.
//
// A test is undelegated iff at least one nameserver or DS override field
// carries a value; with no overrides the engine queries the live
// delegation. Classify is a pure function of the canonical form, so the
// backfill routine can re-derive the class for historical rows and get the
// exact value the live path would have produced.
func Classify(canonical model.CanonicalParams) model.DelegationClass {
	if canonical.OverrideFieldCount() > 0 {
		return model.ClassUndelegated
	}
	return model.ClassDelegated
}
