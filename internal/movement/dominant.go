package movement

// Dominant returns the most frequent non-None direction among the last window
// entries of history. It returns None when that tail holds no directed
// movement.
//
// Ties are broken by recency: of the tied directions, the one that occurred
// most recently wins.
func Dominant(history []Movement, window int) Direction {
	if window <= 0 || len(history) == 0 {
		return None
	}

	tail := history
	if len(tail) > window {
		tail = tail[len(tail)-window:]
	}

	counts := make(map[Direction]int, 4)
	// lastSeen holds the tail index of each direction's latest occurrence.
	lastSeen := make(map[Direction]int, 4)

	for i, m := range tail {
		if m.Direction == None {
			continue
		}
		counts[m.Direction]++
		lastSeen[m.Direction] = i
	}

	best := None
	bestCount := 0
	for dir, n := range counts {
		if n > bestCount || (n == bestCount && lastSeen[dir] > lastSeen[best]) {
			best = dir
			bestCount = n
		}
	}

	return best
}
