package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMetadata_Matches(t *testing.T) {
	meta := Metadata{
		"source_id":   String("doc.txt"),
		"page_or_row": Int(3),
		"score_ok":    Bool(true),
	}
	require.True(t, meta.Matches(nil))
	require.True(t, meta.Matches(Metadata{"source_id": String("doc.txt")}))
	require.True(t, meta.Matches(Metadata{"source_id": String("doc.txt"), "page_or_row": Int(3)}))
	require.False(t, meta.Matches(Metadata{"source_id": String("other.txt")}))
	require.False(t, meta.Matches(Metadata{"missing": String("x")}))
	require.False(t, meta.Matches(Metadata{"page_or_row": Float(3)}))
}

func TestValue_JSONRoundTripKeepsIntegers(t *testing.T) {
	meta := Metadata{
		"count": Int(42),
		"ratio": Float(0.5),
		"name":  String("chunk"),
		"flag":  Bool(false),
	}
	data, err := json.Marshal(meta)
	require.NoError(t, err)

	var back Metadata
	require.NoError(t, json.Unmarshal(data, &back))
	require.Equal(t, KindInt, back["count"].Kind)
	require.Equal(t, int64(42), back["count"].Int)
	require.Equal(t, KindFloat, back["ratio"].Kind)
	require.Equal(t, KindString, back["name"].Kind)
	require.Equal(t, KindBool, back["flag"].Kind)
	require.True(t, meta.Matches(back))
	require.True(t, back.Matches(meta))
}

func TestValue_WholeFloatReloadsAsInt(t *testing.T) {
	data, err := json.Marshal(Metadata{"weight": Float(3)})
	require.NoError(t, err)

	var back Metadata
	require.NoError(t, json.Unmarshal(data, &back))
	require.Equal(t, Int(3), back["weight"])
	require.False(t, back.Matches(Metadata{"weight": Float(3)}))
	require.True(t, back.Matches(Metadata{"weight": Int(3)}))
}
