package internal

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		raw      string
		kind     Kind
		position string
		value    string
	}{
		{raw: "vibrator_device", kind: KindIdentifyDevice},
		{raw: "stinger_missile", kind: KindIdentifyDevice},
		{raw: "vibrator_device_2", kind: KindUnrecognized},
		{raw: "web_monitor", kind: KindIdentifyMonitor},
		{raw: "hello web_monitor 7", kind: KindIdentifyMonitor},
		{raw: "SET_3_1", kind: KindSetBit, position: "3", value: "1"},
		{raw: "SET_99_x", kind: KindSetBit, position: "99", value: "x"},
		{raw: "SET_", kind: KindSetBit},
		{raw: "SET_7", kind: KindSetBit, position: "7"},
		{raw: "BIT_65535", kind: KindSetAll, value: "65535"},
		{raw: "BIT_abc", kind: KindSetAll, value: "abc"},
		{raw: "CLS", kind: KindClear},
		{raw: "CLS ", kind: KindUnrecognized},
		{raw: "cls", kind: KindUnrecognized},
		{raw: "", kind: KindUnrecognized},
		{raw: "65536", kind: KindUnrecognized},
		{raw: "99999999999999999999999", kind: KindUnrecognized},
		{raw: "-1", kind: KindUnrecognized},
		{raw: "+5", kind: KindUnrecognized},
		{raw: "0034", kind: KindStatusReport},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			cmd := Decode(tt.raw)
			assert.Equal(t, tt.kind, cmd.Kind)
			assert.Equal(t, tt.raw, cmd.Raw)
			assert.Equal(t, tt.position, cmd.Position)
			assert.Equal(t, tt.value, cmd.Value)
		})
	}
}

func TestDecodeStatusRange(t *testing.T) {
	for v := 0; v <= 65535; v++ {
		cmd := Decode(strconv.Itoa(v))
		require.Equal(t, KindStatusReport, cmd.Kind, "value %d", v)
		require.Equal(t, BitState(v), cmd.Status)
	}
}

func TestDecodeNonDigitsNeverStatus(t *testing.T) {
	for _, raw := range []string{"12a", "a12", "1 2", "1.5", "0x10", "３４", "34\n"} {
		assert.NotEqual(t, KindStatusReport, Decode(raw).Kind, raw)
	}
}

func TestDirectional(t *testing.T) {
	assert.True(t, KindSetBit.Directional())
	assert.True(t, KindSetAll.Directional())
	assert.True(t, KindClear.Directional())
	assert.False(t, KindStatusReport.Directional())
	assert.False(t, KindIdentifyDevice.Directional())
	assert.False(t, KindUnrecognized.Directional())
}

func TestBitState(t *testing.T) {
	assert.Equal(t, []int{1, 5}, BitState(34).ActiveBits())
	assert.Equal(t, "BIT1, BIT5", BitState(34).String())
	assert.Equal(t, "all bits off", BitState(0).String())
	assert.Len(t, BitState(65535).ActiveBits(), 16)
}
