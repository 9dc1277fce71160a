package pagecorpus

// Close drains the embedding queue, saves the embedding snapshot of the open
// version and releases the dataset lock. Calling Close twice is a no-op.
//
// Pages still pending at Close are not lost: the next Open finds them without
// a vector and marks them pending again.
func (c *Curator) Close() error {
	if c == nil || !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	var firstErr error

	if c.pipeline != nil {
		if err := c.pipeline.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.saveEmbeddings(c.index); err != nil && firstErr == nil {
		firstErr = err
	}

	if err := c.release(); err != nil && firstErr == nil {
		firstErr = err
	}

	c.logger.Info("dataset closed", "root", c.root, "version", c.index.Version().String())

	return firstErr
}

// release stops background work and frees the lock. It is also used to
// unwind a failed Open, so every field may still be nil.
func (c *Curator) release() error {
	var firstErr error

	if c.cancel != nil {
		c.cancel()
	}

	if c.watcher != nil {
		if err := c.watcher.Close(); err != nil && firstErr == nil {
			firstErr = err
		}

		c.watcher = nil
	}

	if c.pipeline != nil && !c.closed.Load() {
		_ = c.pipeline.Close()
	}

	if c.index != nil {
		if err := c.index.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if c.lock != nil {
		if err := c.lock.Unlock(); err != nil && firstErr == nil {
			firstErr = err
		}

		c.lock = nil
	}

	return firstErr
}
