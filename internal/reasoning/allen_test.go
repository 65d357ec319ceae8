package reasoning

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComposeBeforeBefore(t *testing.T) {
	assert.Equal(t, []string{RelBefore}, ComposeRelations(RelBefore, RelBefore))
}

func TestComposeEqualsPassthrough(t *testing.T) {
	for _, rel := range AllenRelations {
		assert.Equal(t, []string{rel}, ComposeRelations(RelEquals, rel), "equals;%s", rel)
		assert.Equal(t, []string{rel}, ComposeRelations(rel, RelEquals), "%s;equals", rel)
	}
}

func TestComposeInverseFallback(t *testing.T) {
	// (after, after) has no direct entry; inv(after)=before and
	// (before, before) -> before, so the inverted result is after.
	got := ComposeRelations(RelAfter, RelAfter)
	assert.Equal(t, []string{RelAfter}, got)
}

func TestComposeUndefinedReturnsNil(t *testing.T) {
	assert.Nil(t, ComposeRelations(RelBefore, RelAfter))
	assert.Nil(t, ComposeRelations("sideways", RelBefore))
}

func TestComposeDisjunctiveEntry(t *testing.T) {
	got := ComposeRelations(RelBefore, RelDuring)
	assert.Contains(t, got, RelBefore)
	assert.Contains(t, got, RelDuring)
	assert.Len(t, got, 5)
}

func TestInverseRelation(t *testing.T) {
	assert.Equal(t, RelAfter, InverseRelation(RelBefore))
	assert.Equal(t, RelEquals, InverseRelation(RelEquals))
	assert.Equal(t, RelContains, InverseRelation(RelDuring))
	assert.Equal(t, "", InverseRelation("nope"))
}
