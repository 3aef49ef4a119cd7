package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRatio(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		want func(t *testing.T, got int)
	}{
		{
			name: "identical strings score 100",
			a:    "Frank Herbert - Dune",
			b:    "Frank Herbert - Dune",
			want: func(t *testing.T, got int) { assert.Equal(t, 100, got) },
		},
		{
			name: "near-duplicate scores at or above the duplicate threshold",
			a:    "J. Author - The Title",
			b:    "J Author - The Title,",
			want: func(t *testing.T, got int) { assert.GreaterOrEqual(t, got, DuplicateThreshold) },
		},
		{
			name: "unrelated strings score low",
			a:    "Frank Herbert - Dune",
			b:    "Jane Austen - Emma",
			want: func(t *testing.T, got int) { assert.Less(t, got, IdentityThreshold) },
		},
		{
			name: "symmetric",
			a:    "Ursula K. Le Guin - The Dispossessed",
			b:    "Ursula Le Guin - The Dispossessed",
			want: func(t *testing.T, got int) {
				assert.Equal(t, Ratio("Ursula Le Guin - The Dispossessed", "Ursula K. Le Guin - The Dispossessed"), got)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.want(t, Ratio(tt.a, tt.b))
		})
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Gabriel García Márquez", "gabriel garcia marquez"},
		{"BRANDON SANDERSON", "brandon sanderson"},
		{"Café", "cafe"},
		{"plain ascii", "plain ascii"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in))
	}
}

func TestNormalizedEqualityScoresFull(t *testing.T) {
	a := "Gabriel García Márquez - Cien Años de Soledad"
	b := "gabriel garcia marquez - cien anos de soledad"
	assert.Equal(t, 100, Ratio(Normalize(a), Normalize(b)))
}

func TestKey(t *testing.T) {
	assert.Equal(t, "frank herbert - dune", Key("Frank Herbert", "Dune"))
	assert.Equal(t, Key("José Saramago", "Ensaio"), Key("Jose Saramago", "ensaio"))
}
