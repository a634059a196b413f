package taxon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRank(t *testing.T) {
	tests := []struct {
		in   string
		want Rank
	}{
		{"kl", Class},
		{"OR", Order},
		{"fa", Family},
		{"genus", Genus},
		{" so ", Species},
		{"oso", Subspecies},
		{"Subspecies", Subspecies},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRank(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseRank("tribe")
	assert.ErrorIs(t, err, ErrUnknownRank)
}

func TestRankOrder(t *testing.T) {
	ranks := Ranks()
	require.Len(t, ranks, RankCount)
	for i := 1; i < len(ranks); i++ {
		assert.True(t, ranks[i-1].Shallower(ranks[i]))
		assert.True(t, ranks[i].Deeper(ranks[i-1]))
	}
	assert.False(t, Genus.Deeper(Genus))
	assert.False(t, NoRank.Valid())
	assert.Equal(t, "", NoRank.Code())
}

func TestRankText(t *testing.T) {
	b, err := Species.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "so", string(b))

	var r Rank
	require.NoError(t, r.UnmarshalText([]byte("family")))
	assert.Equal(t, Family, r)

	_, err = Rank(9).MarshalText()
	assert.Error(t, err)
}

func TestParentRef(t *testing.T) {
	id, ok := Known(7).ID()
	assert.True(t, ok)
	assert.Equal(t, int64(7), id)

	_, ok = Unresolved().ID()
	assert.False(t, ok)

	assert.True(t, Known(3).Equal(Known(3)))
	assert.False(t, Known(3).Equal(Known(4)))
	assert.False(t, Known(0).Equal(Unresolved()))
	assert.True(t, Unresolved().Equal(ParentRef{}))
}
