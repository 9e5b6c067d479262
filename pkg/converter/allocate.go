package converter

// autoChannelOrder is the preference order for automatic assignment.
// The drum channel comes last so melodic layers only land there when nothing else is free.
var autoChannelOrder = [NumChannels]uint8{0, 1, 2, 3, 4, 5, 6, 7, 8, 10, 11, 12, 13, 14, 15, DrumChannel}

// ChannelAssignment maps layers to MIDI channels
type ChannelAssignment struct {
	// Layers holds the channel of each layer by index, or -1 when the layer is unassigned
	Layers []int
	// Channels holds the layer indices sharing each channel, in layer order
	Channels [NumChannels][]int
}

// Channel returns the channel assigned to a layer
func (a *ChannelAssignment) Channel(layer int) (uint8, bool) {
	if layer < 0 || layer >= len(a.Layers) || a.Layers[layer] < 0 {
		return 0, false
	}
	return uint8(a.Layers[layer]), true
}

// Assigned returns the number of layers that received a channel
func (a *ChannelAssignment) Assigned() int {
	n := 0
	for _, ch := range a.Layers {
		if ch >= 0 {
			n++
		}
	}
	return n
}

// UsedChannels returns the channels holding at least one layer, ascending
func (a *ChannelAssignment) UsedChannels() []uint8 {
	var used []uint8
	for ch, layers := range a.Channels {
		if len(layers) > 0 {
			used = append(used, uint8(ch))
		}
	}
	return used
}

func (a *ChannelAssignment) take(layer int, channel uint8) {
	a.Layers[layer] = int(channel)
	a.Channels[channel] = append(a.Channels[channel], layer)
}

// AllocateChannels assigns every layer to one of the 16 MIDI channels.
//
// Explicit requests are honored first, in layer order; a request for a taken channel is
// only granted when every layer involved opted into sharing, otherwise the layer is
// recorded as a ChannelConflict and assigned automatically. Drum layers then go to the
// drum channel, sharing it with other drum layers but never with melodic ones. Remaining
// layers take the lowest free channel. Layers left over are UnassignableLayer.
func AllocateChannels(layers []Layer) (ChannelAssignment, []Diagnostic) {
	a := ChannelAssignment{Layers: make([]int, len(layers))}
	for i := range a.Layers {
		a.Layers[i] = -1
	}

	var diags []Diagnostic
	shareable := [NumChannels]bool{}
	auto := make([]bool, len(layers))

	for i := range layers {
		l := &layers[i]
		if l.Channel == nil {
			auto[i] = true
			continue
		}

		ch := *l.Channel
		switch {
		case len(a.Channels[ch]) == 0:
			a.take(i, ch)
			shareable[ch] = l.SharedChannel
		case shareable[ch] && l.SharedChannel:
			a.take(i, ch)
		default:
			d := newDiagnostic(ChannelConflict, i, l.Name)
			d.Channel = int(ch)
			diags = append(diags, d)
			auto[i] = true
		}
	}

	drumsOnly := true
	for _, li := range a.Channels[DrumChannel] {
		if !layers[li].Drum {
			drumsOnly = false
		}
	}

	for i := range layers {
		if !auto[i] || !layers[i].Drum {
			continue
		}
		if drumsOnly {
			a.take(i, DrumChannel)
			continue
		}
		d := newDiagnostic(UnassignableLayer, i, layers[i].Name)
		d.Channel = DrumChannel
		diags = append(diags, d)
	}

	for i := range layers {
		if !auto[i] || layers[i].Drum {
			continue
		}
		assigned := false
		for _, ch := range autoChannelOrder {
			if len(a.Channels[ch]) == 0 {
				a.take(i, ch)
				assigned = true
				break
			}
		}
		if !assigned {
			diags = append(diags, newDiagnostic(UnassignableLayer, i, layers[i].Name))
		}
	}

	return a, diags
}
