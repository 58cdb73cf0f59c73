package session

// Subscribe returns a channel receiving every published readings update and
// a function ending the subscription. Delivery never blocks the session: a
// subscriber whose buffer is full misses updates. The channel is closed by
// cancel or by Close.
func (c *Controller) Subscribe(buffer int) (<-chan Readings, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Readings, buffer)

	c.subsMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subscribers[id] = ch
	c.subsMu.Unlock()
	c.metrics.ActiveSubscribers.Add(1)

	cancel := func() {
		c.subsMu.Lock()
		defer c.subsMu.Unlock()
		if _, ok := c.subscribers[id]; ok {
			delete(c.subscribers, id)
			close(ch)
			c.metrics.ActiveSubscribers.Add(-1)
		}
	}
	return ch, cancel
}

// publish fans r out to subscribers. Snapshots older than the last published
// one are dropped so consumers always observe readings in order.
func (c *Controller) publish(r Readings) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	if r.Seq <= c.published {
		return
	}
	c.published = r.Seq

	for _, ch := range c.subscribers {
		select {
		case ch <- r:
		default:
		}
	}
}
