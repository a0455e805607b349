package armeabi_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tvmlang/tvm/abi"
	"github.com/tvmlang/tvm/abi/armeabi"
)

func TestSelectMatchesArmTriple(t *testing.T) {
	target, err := abi.Select("armv7-unknown-linux-gnueabi", "")
	require.NoError(t, err)
	assert.Equal(t, "armeabi", target.Name())
}

func TestScalarParamsFillCoreRegisters(t *testing.T) {
	target := armeabi.Target{}

	params := []abi.Param{{Size: 4, Align: 4}, {Size: 4, Align: 4}, {Size: 4, Align: 4}, {Size: 4, Align: 4}, {Size: 4, Align: 4}}

	sig, err := target.Classify(params, abi.Param{Size: 4, Align: 4})
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		assert.Equal(t, abi.Default, sig.Params[i].Mode, "param %d", i)
	}
	assert.Equal(t, abi.Byval, sig.Params[4].Mode)
}

func TestEightByteAlignedAggregateSkipsOddRegister(t *testing.T) {
	target := armeabi.Target{}

	params := []abi.Param{
		{Size: 4, Align: 4},
		{Size: 8, Align: 8, IsAggregate: true},
	}

	sig, err := target.Classify(params, abi.Param{Size: 4, Align: 4})
	require.NoError(t, err)
	assert.Equal(t, abi.Default, sig.Params[0].Mode)
	assert.Equal(t, abi.Default, sig.Params[1].Mode)
	assert.Equal(t, 8, sig.Params[1].CoerceSize)
}

func TestFirstOversizedAggregateSplitsRemainderByval(t *testing.T) {
	target := armeabi.Target{}

	params := []abi.Param{
		{Size: 4, Align: 4},
		{Size: 4, Align: 4},
		{Size: 4, Align: 4},
		{Size: 12, Align: 4, IsAggregate: true},
		{Size: 4, Align: 4, IsAggregate: true},
	}

	sig, err := target.Classify(params, abi.Param{Size: 4, Align: 4})
	require.NoError(t, err)
	assert.Equal(t, abi.Default, sig.Params[0].Mode)
	assert.Equal(t, abi.Default, sig.Params[1].Mode)
	assert.Equal(t, abi.Default, sig.Params[2].Mode)
	assert.Equal(t, abi.Split, sig.Params[3].Mode)
	assert.Equal(t, 4, sig.Params[3].SplitHeadBytes)
	assert.Equal(t, abi.Byval, sig.Params[4].Mode)
}

func TestLargeAggregateReturnUsesSret(t *testing.T) {
	target := armeabi.Target{}

	sig, err := target.Classify(nil, abi.Param{Size: 16, Align: 4, IsAggregate: true})
	require.NoError(t, err)
	assert.True(t, sig.Sret)
	assert.Equal(t, abi.Byval, sig.Return.Mode)
}

func TestSmallAggregateReturnStaysInRegister(t *testing.T) {
	target := armeabi.Target{}

	sig, err := target.Classify(nil, abi.Param{Size: 4, Align: 4, IsAggregate: true})
	require.NoError(t, err)
	assert.False(t, sig.Sret)
	assert.Equal(t, abi.Default, sig.Return.Mode)
}
