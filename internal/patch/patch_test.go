package patch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const raw = `{"train":{"type":"RJ","no":"63"},"toStation":{"name":"Salzburg Hbf","realTime":100},"comment":"hi"}`

func TestMergePatch_Identity(t *testing.T) {
	for _, p := range [][]byte{nil, []byte(""), []byte("{}")} {
		out, err := MergePatch([]byte(raw), p)
		require.NoError(t, err)
		assert.True(t, Equal([]byte(raw), out), "patch %q", p)
	}
}

func TestMergePatch_Semantics(t *testing.T) {
	out, err := MergePatch([]byte(raw), []byte(`{"toStation":{"realTime":160},"comment":null,"composition":"2x 4024"}`))
	require.NoError(t, err)

	want := `{"train":{"type":"RJ","no":"63"},"toStation":{"name":"Salzburg Hbf","realTime":160},"composition":"2x 4024"}`
	assert.JSONEq(t, want, string(out))
}

func TestMergePatch_Invalid(t *testing.T) {
	_, err := MergePatch([]byte(raw), []byte(`{`))
	require.Error(t, err)
}

func TestComposePatch_EqualsSequentialApplication(t *testing.T) {
	tests := []struct {
		name     string
		old, new string
	}{
		{"disjoint keys", `{"a":1}`, `{"b":2}`},
		{"overwrite", `{"a":1}`, `{"a":3}`},
		{"nested", `{"toStation":{"realTime":1}}`, `{"toStation":{"scheduledTime":2}}`},
		{"delete raw member", `{}`, `{"comment":null}`},
		{"delete after set", `{"composition":"x"}`, `{"composition":null}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seq1, err := MergePatch([]byte(raw), []byte(tt.old))
			require.NoError(t, err)
			seq, err := MergePatch(seq1, []byte(tt.new))
			require.NoError(t, err)

			composed, err := ComposePatch([]byte(tt.old), []byte(tt.new))
			require.NoError(t, err)
			once, err := MergePatch([]byte(raw), composed)
			require.NoError(t, err)

			assert.JSONEq(t, string(seq), string(once))
		})
	}
}

func TestComposePatch_Idempotent(t *testing.T) {
	p := []byte(`{"composition":"x","failedcomposition-db":true}`)
	once, err := ComposePatch(Empty, p)
	require.NoError(t, err)
	twice, err := ComposePatch(once, p)
	require.NoError(t, err)
	assert.JSONEq(t, string(once), string(twice))
}

func TestFlagHasString(t *testing.T) {
	doc := []byte(`{"failedhafas":true,"other":false,"gone":null,"headsign":"Wien"}`)

	assert.True(t, Flag(doc, "failedhafas"))
	assert.False(t, Flag(doc, "other"))
	assert.False(t, Flag(doc, "missing"))

	assert.True(t, Has(doc, "other"))
	assert.False(t, Has(doc, "gone"))
	assert.False(t, Has(doc, "missing"))

	assert.Equal(t, "Wien", String(doc, "headsign"))
	assert.Equal(t, "", String(doc, "failedhafas"))
	assert.False(t, Flag(nil, "x"))
}

func TestSet(t *testing.T) {
	p, err := Set("failedcomposition-oebb", true)
	require.NoError(t, err)
	assert.JSONEq(t, `{"failedcomposition-oebb":true}`, string(p))
}
