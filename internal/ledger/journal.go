package ledger

// journal records undo closures for the transaction in flight.
type journal struct {
	entries []func()
}

func (j *journal) append(undo func()) {
	j.entries = append(j.entries, undo)
}

func (j *journal) snapshot() int {
	return len(j.entries)
}

// revertTo undoes every entry recorded after snap, newest first.
func (j *journal) revertTo(snap int) {
	for i := len(j.entries) - 1; i >= snap; i-- {
		j.entries[i]()
	}
	j.entries = j.entries[:snap]
}
