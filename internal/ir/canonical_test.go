package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical_SortsKeys(t *testing.T) {
	obj := IRObject{
		"to":     IRString("0xabc"),
		"amount": IRString("100"),
		"from":   IRString("0xdef"),
	}

	got, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"amount":"100","from":"0xdef","to":"0xabc"}`, string(got))
}

func TestMarshalCanonical_UTF16KeyOrder(t *testing.T) {
	// U+1F600 encodes as the surrogate pair D83D DE00, so it sorts before
	// U+E000 in UTF-16 even though its UTF-8 bytes sort after.
	obj := IRObject{
		"\ue000":     IRInt(2),
		"\U0001F600": IRInt(1),
	}

	got, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, "{\"\U0001F600\":1,\"\ue000\":2}", string(got))
}

func TestMarshalCanonical_NoHTMLEscape(t *testing.T) {
	got, err := MarshalCanonical(IRString("<a&b>"))
	require.NoError(t, err)
	assert.Equal(t, `"<a&b>"`, string(got))
}

func TestMarshalCanonical_LineSeparatorsLiteral(t *testing.T) {
	got, err := MarshalCanonical(IRString("a\u2028b\u2029c"))
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\u2029c\"", string(got))
}

func TestMarshalCanonical_EscapedBackslashKept(t *testing.T) {
	got, err := MarshalCanonical(IRString(`\u2028`))
	require.NoError(t, err)
	assert.Equal(t, `"\\u2028"`, string(got))
}

func TestMarshalCanonical_NFC(t *testing.T) {
	got, err := MarshalCanonical(IRString("e\u0301"))
	require.NoError(t, err)
	assert.Equal(t, "\"\u00e9\"", string(got))
}

func TestMarshalCanonical_Nested(t *testing.T) {
	v := IRObject{
		"events": IRArray{
			IRObject{"name": IRString("Minted"), "ok": IRBool(true)},
			IRInt(-7),
		},
	}

	got, err := MarshalCanonical(v)
	require.NoError(t, err)
	assert.Equal(t, `{"events":[{"name":"Minted","ok":true},-7]}`, string(got))
}

func TestMarshalCanonical_RejectsFloatsAndNull(t *testing.T) {
	_, err := MarshalCanonical(1.5)
	assert.Error(t, err)

	_, err = MarshalCanonical(nil)
	assert.Error(t, err)

	_, err = MarshalCanonical(map[string]any{"x": nil})
	assert.Error(t, err)
}

func TestMarshalCanonical_PlainGoValues(t *testing.T) {
	got, err := MarshalCanonical(map[string]any{"b": []any{"x", 2}, "a": true})
	require.NoError(t, err)
	assert.Equal(t, `{"a":true,"b":["x",2]}`, string(got))
}
