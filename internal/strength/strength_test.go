package strength

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name     string
		password string
		score    int
		tier     Tier
	}{
		{"empty", "", 0, Weak},
		{"short lower", "abc", 1, Weak},
		{"short mixed", "aB", 2, Weak},
		{"eight lower", "abcdefgh", 2, Weak},
		{"eight lower digit", "abcdefg1", 3, Moderate},
		{"eight all classes", "Abcdef1!", 5, Strong},
		{"twelve all classes", "Ab1!Ab1!Ab1!", 6, Strong},
		{"twelve lower", "abcdefghijkl", 3, Moderate},
		{"space is a symbol", "a b", 2, Weak},
		{"non ascii letters count as symbols", "ÄÖÜ", 1, Weak},
		{"length counts runes", "ééééééé", 1, Weak},
		{"eight runes", "éééééééé", 2, Weak},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(tt.password)
			assert.Equal(t, tt.score, got.Score)
			assert.Equal(t, tt.tier, got.Tier)
		})
	}
}

func TestEvaluate_Deterministic(t *testing.T) {
	for _, p := range []string{"", "abc", "Ab1!Ab1!Ab1!", "correct horse battery staple"} {
		require.Equal(t, Evaluate(p), Evaluate(p))
	}
}

func TestEvaluate_ScoreNeverExceedsMax(t *testing.T) {
	r := Evaluate("Aa1!Aa1!Aa1!Aa1!Aa1!Aa1!Aa1!")
	assert.Equal(t, MaxScore, r.Score)
}

func TestAcceptableAndCheck(t *testing.T) {
	assert.False(t, Evaluate("abc").Acceptable())
	assert.True(t, Evaluate("abcdefg1").Acceptable())

	require.ErrorIs(t, Check(""), ErrTooWeak)
	require.ErrorIs(t, Check("password"), ErrTooWeak)
	require.NoError(t, Check("Passw0rd"))
}

func TestTier_StringAndLabel(t *testing.T) {
	assert.Equal(t, "weak", Weak.String())
	assert.Equal(t, "moderate", Moderate.String())
	assert.Equal(t, "strong", Strong.String())

	assert.Equal(t, "Password is too weak", Weak.Label())
	assert.Equal(t, "Password is moderate", Moderate.Label())
	assert.Equal(t, "Password is strong", Strong.Label())
}
