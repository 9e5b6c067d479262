package converter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocateChannelsAuto(t *testing.T) {
	a, diags := AllocateChannels([]Layer{{Name: "a"}, {Name: "b"}, {Name: "kit", Drum: true}, {Name: "c"}})

	assert.Empty(t, diags)
	assert.Equal(t, []int{0, 1, 9, 2}, a.Layers)
	assert.Equal(t, []uint8{0, 1, 2, 9}, a.UsedChannels())
	assert.Equal(t, 4, a.Assigned())
}

func TestAllocateChannelsExplicitFirst(t *testing.T) {
	a, diags := AllocateChannels([]Layer{{Name: "auto"}, {Name: "fixed", Channel: Ch(0)}})

	assert.Empty(t, diags)
	assert.Equal(t, []int{1, 0}, a.Layers)

	ch, ok := a.Channel(1)
	assert.True(t, ok)
	assert.Equal(t, uint8(0), ch)

	_, ok = a.Channel(5)
	assert.False(t, ok)
}

func TestAllocateChannelsConflict(t *testing.T) {
	a, diags := AllocateChannels([]Layer{
		{Name: "first", Channel: Ch(3)},
		{Name: "second", Channel: Ch(3)},
	})

	require.Len(t, diags, 1)
	assert.Equal(t, ChannelConflict, diags[0].Kind)
	assert.Equal(t, 1, diags[0].Layer)
	assert.Equal(t, 3, diags[0].Channel)

	assert.Equal(t, []int{3, 0}, a.Layers)
}

func TestAllocateChannelsShared(t *testing.T) {
	a, diags := AllocateChannels([]Layer{
		{Name: "left", Channel: Ch(3), SharedChannel: true},
		{Name: "right", Channel: Ch(3), SharedChannel: true},
	})

	assert.Empty(t, diags)
	assert.Equal(t, []int{3, 3}, a.Layers)
	assert.Equal(t, []int{0, 1}, a.Channels[3])
	assert.Equal(t, []uint8{3}, a.UsedChannels())
}

func TestAllocateChannelsSharingNeedsBothLayers(t *testing.T) {
	_, diags := AllocateChannels([]Layer{
		{Name: "owner", Channel: Ch(3)},
		{Name: "guest", Channel: Ch(3), SharedChannel: true},
	})

	require.Len(t, diags, 1)
	assert.Equal(t, ChannelConflict, diags[0].Kind)
}

func TestAllocateChannelsDrumsShare(t *testing.T) {
	a, diags := AllocateChannels([]Layer{
		{Name: "kick", Drum: true},
		{Name: "snare", Drum: true},
	})

	assert.Empty(t, diags)
	assert.Equal(t, []int{9, 9}, a.Layers)
}

func TestAllocateChannelsDrumChannelTaken(t *testing.T) {
	a, diags := AllocateChannels([]Layer{
		{Name: "lead", Channel: Ch(DrumChannel)},
		{Name: "kit", Drum: true},
	})

	require.Len(t, diags, 1)
	assert.Equal(t, UnassignableLayer, diags[0].Kind)
	assert.Equal(t, 1, diags[0].Layer)
	assert.Equal(t, DrumChannel, diags[0].Channel)
	assert.Equal(t, []int{9, -1}, a.Layers)
}

func TestAllocateChannelsDrumChannelLast(t *testing.T) {
	layers := make([]Layer, NumChannels+1)
	for i := range layers {
		layers[i] = Layer{Name: "melodic"}
	}

	a, diags := AllocateChannels(layers)

	require.Len(t, diags, 1)
	assert.Equal(t, UnassignableLayer, diags[0].Kind)
	assert.Equal(t, NumChannels, diags[0].Layer)
	assert.Equal(t, -1, diags[0].Channel)

	assert.Equal(t, DrumChannel, a.Layers[NumChannels-1])
	assert.Equal(t, -1, a.Layers[NumChannels])
	assert.Equal(t, NumChannels, a.Assigned())
}

func TestAllocateChannelsEmpty(t *testing.T) {
	a, diags := AllocateChannels(nil)
	assert.Empty(t, diags)
	assert.Empty(t, a.UsedChannels())
}
