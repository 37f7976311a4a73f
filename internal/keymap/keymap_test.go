package keymap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		want Keycode
	}{
		{"A", 0x04},
		{"z", 0x1D},
		{"1", 0x1E},
		{"0", 0x27},
		{"F12", 0x45},
		{"enter", 0x28},
		{"LSHIFT", 0x1002},
		{"RGUI", 0x1080},
		{"VOL_UP", 0x2001},
		{"FN", 0x3000},
		{"HOST_SWITCH", 0x4002},
		{"", None},
		{"___", None},
		{"0x2004", 0x2004},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseUnknown(t *testing.T) {
	_, err := Parse("NOT_A_KEY")
	assert.Error(t, err)
}

func TestKeycodeClass(t *testing.T) {
	assert.Equal(t, ClassNormal, Keycode(0x04).Class())
	assert.True(t, Keycode(0x04).IsNormal())
	assert.False(t, None.IsNormal())
	assert.Equal(t, ClassModifier, Modifier(ModLeftCtrl).Class())
	assert.Equal(t, ModLeftCtrl, Modifier(ModLeftCtrl).Payload())
	assert.Equal(t, ClassExtended, Extended(3).Class())
	assert.Equal(t, ClassLayer, Fn.Class())
	assert.Equal(t, ClassSpecial, SpecialPair.Class())
	assert.Equal(t, "A", Keycode(0x04).String())
	assert.Equal(t, "0x00ff", Keycode(0xFF).String())
}

func TestParseLayout(t *testing.T) {
	l, err := ParseLayout(
		[][]string{
			{"A", "B", ""},
			{"LCTRL", "FN", "C"},
		},
		[][]string{
			{"1", "", ""},
			{"", "", "VOL_UP"},
		},
	)
	require.NoError(t, err)
	assert.Equal(t, 2, l.Rows())
	assert.Equal(t, 3, l.Cols())

	assert.Equal(t, Keycode(0x04), l.Lookup(LayerPrimary, 0, 0))
	assert.Equal(t, Keycode(0x1E), l.Lookup(LayerFn, 0, 0))
	// fn falls through to primary where empty
	assert.Equal(t, Keycode(0x05), l.Lookup(LayerFn, 0, 1))
	assert.Equal(t, Extended(1), l.Lookup(LayerFn, 1, 2))

	assert.False(t, l.IsKey(0, 2))
	assert.True(t, l.IsKey(1, 1))
	assert.Equal(t, uint32(0b011), l.ValidMask(0))
	assert.Equal(t, uint32(0b111), l.ValidMask(1))
	assert.Equal(t, None, l.Lookup(LayerPrimary, 5, 0))

	out, in, ok := l.Find(Fn)
	require.True(t, ok)
	assert.Equal(t, 1, out)
	assert.Equal(t, 1, in)
}

func TestNewLayoutRejectsRaggedGrid(t *testing.T) {
	_, err := NewLayout([][]Keycode{{1, 2}, {3}}, nil)
	assert.ErrorIs(t, err, ErrLayoutShape)

	_, err = NewLayout(nil, nil)
	assert.ErrorIs(t, err, ErrLayoutShape)

	_, err = NewLayout([][]Keycode{{1}}, [][]Keycode{{1}, {2}})
	assert.ErrorIs(t, err, ErrLayoutShape)
}
