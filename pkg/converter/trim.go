package converter

// LeadingSilence returns the earliest tick of an audible event across all tracks,
// or 0 when no track has audible content
func LeadingSilence(tracks []Track) Tick {
	found := false
	var first Tick
	for ti := range tracks {
		for ei := range tracks[ti].Events {
			e := &tracks[ti].Events[ei]
			if !e.Audible() {
				continue
			}
			if !found || e.Tick < first {
				first = e.Tick
				found = true
			}
			// events are sorted, later ones can't be earlier
			break
		}
	}
	return first
}

// TrimLeadingSilence shifts every track by the same amount so the first audible event lands
// on tick 0. Events that would become negative are clamped to 0. The input is not modified.
func TrimLeadingSilence(tracks []Track) []Track {
	shift := LeadingSilence(tracks)

	out := make([]Track, len(tracks))
	for ti := range tracks {
		out[ti] = tracks[ti]
		out[ti].Events = make([]MidiEvent, len(tracks[ti].Events))
		copy(out[ti].Events, tracks[ti].Events)
		if shift == 0 {
			continue
		}
		for ei := range out[ti].Events {
			e := &out[ti].Events[ei]
			e.Tick = clampShift(e.Tick, shift)
			e.noteStart = clampShift(e.noteStart, shift)
		}
	}
	return out
}

func clampShift(t, shift Tick) Tick {
	if t < shift {
		return 0
	}
	return t - shift
}
