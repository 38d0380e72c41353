package roomchat

import "sort"

// Reconcile merges live messages that arrived while the initial snapshot was in
// flight into that snapshot.
//
// The result depends only on the inputs' timestamps: live messages are ordered by
// sendAt (arrival order breaks ties) and woven into the snapshot so that no live
// message precedes a snapshot message it was sent after. On equal timestamps the
// snapshot message comes first. Messages without a timestamp sort last.
func Reconcile(snapshot, live []Message) []Message {
	pending := make([]Message, len(live))
	copy(pending, live)
	sort.SliceStable(pending, func(i, j int) bool {
		return newer(pending[j], pending[i]) || (!pending[i].SendAt.IsZero() && pending[j].SendAt.IsZero())
	})

	out := make([]Message, 0, len(snapshot)+len(pending))
	i, j := 0, 0
	for i < len(snapshot) && j < len(pending) {
		if newer(snapshot[i], pending[j]) {
			out = append(out, pending[j])
			j++
			continue
		}
		out = append(out, snapshot[i])
		i++
	}
	out = append(out, snapshot[i:]...)
	out = append(out, pending[j:]...)
	return out
}
