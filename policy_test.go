package cmp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicy_Builtins(t *testing.T) {
	def := DefaultPolicy()
	lw := LightweightPolicy()
	for bt := BodyType(0); bt < numBodyTypes; bt++ {
		ann := bt.IsAnnouncement()
		assert.Equal(t, BodyRule{TransactionID: !ann}, def.Rule(bt), bt.String())

		want := BodyRule{TransactionID: !ann, SenderNonce: !ann}
		if !ann && bt != BodyError {
			want.Protection = Required
		}
		assert.Equal(t, want, lw.Rule(bt), bt.String())
	}
	assert.Equal(t, BodyRule{}, def.Rule(BodyType(40)))
}

func TestPolicy_SetRuleAndClone(t *testing.T) {
	p := DefaultPolicy()
	c := p.Clone()
	require.NoError(t, c.SetRule(BodyGenM, BodyRule{Protection: Forbidden}))
	assert.Equal(t, Forbidden, c.Rule(BodyGenM).Protection)
	assert.Equal(t, Optional, p.Rule(BodyGenM).Protection)

	var none *Policy
	assert.Nil(t, none.Clone())

	requireCode(t, p.SetRule(BodyType(27), BodyRule{}), CodeInvalidConfiguration)
	requireCode(t, p.SetRule(BodyIR, BodyRule{Protection: Requirement(9)}), CodeInvalidConfiguration)
}

func TestPolicyByName(t *testing.T) {
	for name, want := range map[string]string{"": "default", "Default": "default", "lightweight": "lightweight", "none": "none"} {
		p, err := PolicyByName(name)
		require.NoError(t, err)
		assert.Equal(t, want, p.Name)
	}
	_, err := PolicyByName("strict")
	requireCode(t, err, CodeInvalidConfiguration)
}

func TestRequirement_Parse(t *testing.T) {
	for _, r := range []Requirement{Optional, Required, Forbidden} {
		got, err := ParseRequirement(r.String())
		require.NoError(t, err)
		assert.Equal(t, r, got)
	}
	got, err := ParseRequirement("REQUIRED")
	require.NoError(t, err)
	assert.Equal(t, Required, got)

	_, err = ParseRequirement("maybe")
	requireCode(t, err, CodeInvalidConfiguration)
	assert.Equal(t, "Requirement(5)", Requirement(5).String())
}
