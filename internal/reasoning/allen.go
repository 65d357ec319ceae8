// Package reasoning implements the rule-mediated derivation engine: the rule
// registry, stochastic rule selection weighted by learned success rates, the
// default NAL rule set, and Allen-algebra temporal composition.
package reasoning

// Allen interval relations.
const (
	RelBefore       = "before"
	RelAfter        = "after"
	RelMeets        = "meets"
	RelMetBy        = "met_by"
	RelOverlaps     = "overlaps"
	RelOverlappedBy = "overlapped_by"
	RelStarts       = "starts"
	RelStartedBy    = "started_by"
	RelDuring       = "during"
	RelContains     = "contains"
	RelFinishes     = "finishes"
	RelFinishedBy   = "finished_by"
	RelEquals       = "equals"
)

// AllenRelations lists all thirteen relations.
var AllenRelations = []string{
	RelBefore, RelAfter, RelMeets, RelMetBy, RelOverlaps, RelOverlappedBy,
	RelStarts, RelStartedBy, RelDuring, RelContains, RelFinishes,
	RelFinishedBy, RelEquals,
}

var allenInverse = map[string]string{
	RelBefore:       RelAfter,
	RelAfter:        RelBefore,
	RelMeets:        RelMetBy,
	RelMetBy:        RelMeets,
	RelOverlaps:     RelOverlappedBy,
	RelOverlappedBy: RelOverlaps,
	RelStarts:       RelStartedBy,
	RelStartedBy:    RelStarts,
	RelDuring:       RelContains,
	RelContains:     RelDuring,
	RelFinishes:     RelFinishedBy,
	RelFinishedBy:   RelFinishes,
	RelEquals:       RelEquals,
}

// InverseRelation returns the converse of an Allen relation, or "" for an
// unknown relation name.
func InverseRelation(rel string) string {
	return allenInverse[rel]
}

// IsAllenRelation reports whether rel names one of the thirteen relations.
func IsAllenRelation(rel string) bool {
	_, ok := allenInverse[rel]
	return ok
}

type relPair struct{ r1, r2 string }

// Direct composition entries. Pairs not listed here are attempted through
// one level of inverse composition before giving up.
var allenCompose = map[relPair][]string{
	{RelBefore, RelBefore}:   {RelBefore},
	{RelBefore, RelMeets}:    {RelBefore},
	{RelBefore, RelOverlaps}: {RelBefore},
	{RelBefore, RelStarts}:   {RelBefore},
	{RelBefore, RelDuring}:   {RelBefore, RelMeets, RelOverlaps, RelStarts, RelDuring},
	{RelBefore, RelFinishes}: {RelBefore, RelMeets, RelOverlaps, RelStarts, RelDuring},

	{RelMeets, RelBefore}:   {RelBefore},
	{RelMeets, RelMeets}:    {RelBefore},
	{RelMeets, RelOverlaps}: {RelBefore},
	{RelMeets, RelStarts}:   {RelMeets},
	{RelMeets, RelDuring}:   {RelOverlaps, RelStarts, RelDuring},
	{RelMeets, RelFinishes}: {RelOverlaps, RelStarts, RelDuring},

	{RelOverlaps, RelBefore}:   {RelBefore},
	{RelOverlaps, RelMeets}:    {RelBefore},
	{RelOverlaps, RelOverlaps}: {RelBefore, RelMeets, RelOverlaps},
	{RelOverlaps, RelStarts}:   {RelOverlaps},
	{RelOverlaps, RelDuring}:   {RelOverlaps, RelStarts, RelDuring},

	{RelStarts, RelBefore}:   {RelBefore},
	{RelStarts, RelMeets}:    {RelBefore},
	{RelStarts, RelStarts}:   {RelStarts},
	{RelStarts, RelDuring}:   {RelDuring},
	{RelStarts, RelFinishes}: {RelBefore, RelMeets, RelOverlaps, RelStarts, RelDuring},

	{RelDuring, RelBefore}: {RelBefore},
	{RelDuring, RelMeets}:  {RelBefore},
	{RelDuring, RelDuring}: {RelDuring},

	{RelFinishes, RelBefore}: {RelBefore},
	{RelFinishes, RelDuring}: {RelDuring},
	{RelFinishes, RelMeets}:  {RelMeets},

	{RelContains, RelContains}: {RelContains},
	{RelContains, RelEquals}:   {RelContains},
}

// ComposeRelations computes the possible relations between A and C given
// A rel1 B and B rel2 C. Relations involving equals pass the other relation
// through. Pairs without a direct table entry are retried as
// inverse(compose(inverse(rel2), inverse(rel1))); nil is returned when the
// composition is still undefined.
func ComposeRelations(rel1, rel2 string) []string {
	if !IsAllenRelation(rel1) || !IsAllenRelation(rel2) {
		return nil
	}
	if rel1 == RelEquals {
		return []string{rel2}
	}
	if rel2 == RelEquals {
		return []string{rel1}
	}
	if out, ok := allenCompose[relPair{rel1, rel2}]; ok {
		return out
	}
	// One level of inverse lookup: (r1 ; r2) = inv(inv(r2) ; inv(r1)).
	if out, ok := allenCompose[relPair{allenInverse[rel2], allenInverse[rel1]}]; ok {
		inverted := make([]string, len(out))
		for i, r := range out {
			inverted[i] = allenInverse[r]
		}
		return inverted
	}
	return nil
}
