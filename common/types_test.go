package common

import (
	"encoding/json"
	"fmt"
	"math/big"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"
)

func TestBigInt(t *testing.T) {
	var v BigInt

	textRef := []byte("11111111111111111111")
	err := v.UnmarshalText(textRef)
	require.NoError(t, err)
	textRoundTrip, err := v.MarshalText()
	require.NoError(t, err)
	require.Equal(t, textRef, textRoundTrip)

	jsonRef := []byte("\"22222222222222222222\"")
	err = json.Unmarshal(jsonRef, &v)
	require.NoError(t, err)
	jsonRoundTrip, err := json.Marshal(v)
	require.NoError(t, err)
	require.Equal(t, jsonRef, jsonRoundTrip)

	stringRef := "33333333333333333333"
	err = v.Int.UnmarshalText([]byte(stringRef))
	require.NoError(t, err)
	stringRoundTrip := fmt.Sprintf("%v", &v)
	require.Equal(t, stringRef, stringRoundTrip)
}

func TestBigIntNumeric(t *testing.T) {
	var v BigInt
	require.NoError(t, v.ScanNumeric(pgtype.Numeric{Int: big.NewInt(12), Exp: 3, Valid: true}))
	require.Equal(t, "12000", v.String())

	require.NoError(t, v.ScanNumeric(pgtype.Numeric{Int: big.NewInt(1200), Exp: -2, Valid: true}))
	require.Equal(t, "12", v.String())

	require.Error(t, v.ScanNumeric(pgtype.Numeric{Int: big.NewInt(1201), Exp: -2, Valid: true}))
	require.Error(t, v.ScanNumeric(pgtype.Numeric{}))

	n, err := BigIntFrom(big.NewInt(77)).NumericValue()
	require.NoError(t, err)
	require.True(t, n.Valid)
	require.Equal(t, int64(77), n.Int.Int64())

	zero := BigIntFrom(nil)
	require.Equal(t, "0", zero.String())
}
