package converter

import "sort"

// NormalizedLayer holds the validated, time-ordered content of one layer.
// Notes never collapse and never overlap another note of the same pitch.
type NormalizedLayer struct {
	Index int
	Notes []NoteEvent
	Texts []TextEvent
}

// NormalizeLayer validates the notes of one layer.
//
// Notes are stably sorted by start. Collapsed notes (end <= start) are dropped. A note
// overlapping an earlier one of the same pitch truncates the earlier note to its own start.
// Exceeding maxPolyphony simultaneous notes is reported once per layer; a non-positive
// maxPolyphony disables the check, and muted layers are never checked since they sound
// nothing. Labels are kept verbatim.
func NormalizeLayer(index int, layer Layer, maxPolyphony int) (NormalizedLayer, []Diagnostic) {
	var diags []Diagnostic

	if !isPrintableASCII(layer.Name) {
		d := newDiagnostic(NonASCIILabel, index, layer.Name)
		d.Text = layer.Name
		diags = append(diags, d)
	}

	notes := make([]NoteEvent, 0, len(layer.Notes))
	for _, n := range sortedNotes(layer.Notes) {
		if n.End <= n.Start {
			d := newDiagnostic(CollapsedNote, index, layer.Name)
			d.Time = n.Start
			d.Pitch = int(n.Pitch)
			diags = append(diags, d)
			continue
		}
		if n.Velocity == 0 {
			n.Velocity = DefaultVelocity
		}
		notes = append(notes, n)
	}

	kept, overlaps := resolveOverlaps(notes)
	for _, i := range overlaps {
		n := notes[i]
		d := newDiagnostic(NoteOverlap, index, layer.Name)
		d.Time = n.Start
		d.Pitch = int(n.Pitch)
		diags = append(diags, d)
	}

	notes = pick(notes, kept)

	if maxPolyphony > 0 && !layer.Mute {
		if at, exceeded := polyphonyExceeded(notes, maxPolyphony); exceeded {
			d := newDiagnostic(ExcessivePolyphony, index, layer.Name)
			d.Time = at
			diags = append(diags, d)
		}
	}

	for _, n := range notes {
		if n.Label != "" && !isPrintableASCII(n.Label) {
			d := newDiagnostic(NonASCIILabel, index, layer.Name)
			d.Time = n.Start
			d.Pitch = int(n.Pitch)
			d.Text = n.Label
			diags = append(diags, d)
		}
	}

	texts := make([]TextEvent, len(layer.Texts))
	copy(texts, layer.Texts)
	sort.SliceStable(texts, func(i, j int) bool { return texts[i].Time < texts[j].Time })
	for _, t := range texts {
		if !isPrintableASCII(t.Text) {
			d := newDiagnostic(NonASCIILabel, index, layer.Name)
			d.Time = t.Time
			d.Text = t.Text
			diags = append(diags, d)
		}
	}

	return NormalizedLayer{Index: index, Notes: notes, Texts: texts}, diags
}

func sortedNotes(in []NoteEvent) []NoteEvent {
	notes := make([]NoteEvent, len(in))
	copy(notes, in)
	sort.SliceStable(notes, func(i, j int) bool { return notes[i].Start < notes[j].Start })
	return notes
}

// resolveOverlaps truncates, in place, each note that is still sounding when a later note
// of the same pitch starts. Notes must be sorted by start. It returns the indices of the
// surviving notes and of the notes whose start caused a truncation.
func resolveOverlaps(notes []NoteEvent) (kept []int, overlaps []int) {
	dropped := make([]bool, len(notes))
	last := make(map[uint8]int)

	for i := range notes {
		n := &notes[i]
		if j, ok := last[n.Pitch]; ok && notes[j].End > n.Start {
			overlaps = append(overlaps, i)
			notes[j].End = n.Start
			if notes[j].End <= notes[j].Start {
				dropped[j] = true
			}
		}
		last[n.Pitch] = i
	}

	kept = make([]int, 0, len(notes))
	for i := range notes {
		if !dropped[i] {
			kept = append(kept, i)
		}
	}
	return kept, overlaps
}

func pick(notes []NoteEvent, indices []int) []NoteEvent {
	out := make([]NoteEvent, len(indices))
	for k, i := range indices {
		out[k] = notes[i]
	}
	return out
}

// polyphonyExceeded returns the first time more than limit notes sound at once
func polyphonyExceeded(notes []NoteEvent, limit int) (float64, bool) {
	type edge struct {
		at    float64
		delta int
	}
	edges := make([]edge, 0, len(notes)*2)
	for _, n := range notes {
		edges = append(edges, edge{n.Start, 1}, edge{n.End, -1})
	}
	sort.SliceStable(edges, func(i, j int) bool {
		if edges[i].at != edges[j].at {
			return edges[i].at < edges[j].at
		}
		return edges[i].delta < edges[j].delta
	})

	active := 0
	for _, e := range edges {
		active += e.delta
		if active > limit {
			return e.at, true
		}
	}
	return 0, false
}
