package dbutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFinalize_RewritesLimitAndRebinds(t *testing.T) {
	query := "SELECT * FROM docs WHERE kind=? LIMIT ?,?"
	args := []interface{}{"text", 0, 10}
	got, gotArgs := Finalize(query, args)
	require.Equal(t, "SELECT * FROM docs WHERE kind=$1 LIMIT $2 OFFSET $3", got)
	require.Equal(t, []interface{}{"text", 10, 0}, gotArgs)
}

func TestFinalize_NoLimitClause(t *testing.T) {
	got, gotArgs := Finalize("SELECT * FROM docs WHERE kind=?", []interface{}{"text"})
	require.Equal(t, "SELECT * FROM docs WHERE kind=$1", got)
	require.Equal(t, []interface{}{"text"}, gotArgs)
}
