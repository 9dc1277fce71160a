package hnsw

// LevelStats describes one layer of the graph.
type LevelStats struct {
	Nodes          int
	Connections    int
	AvgConnections float64
}

// Stats summarises the graph shape.
type Stats struct {
	Nodes    int
	MaxLevel int
	EntryID  uint32
	M        int
	EF       int
	Levels   []LevelStats
}

// Stats returns statistics about the HNSW graph.
func (h *HNSW) Stats() Stats {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	s := Stats{
		Nodes:    len(h.nodes),
		MaxLevel: h.maxLevel,
		EntryID:  h.ep,
		M:        h.opts.M,
		EF:       h.opts.EF,
		Levels:   make([]LevelStats, h.maxLevel+1),
	}

	for _, node := range h.nodes {
		for level := node.Layer; level >= 0; level-- {
			s.Levels[level].Nodes++
			s.Levels[level].Connections += len(node.Connections[level])
		}
	}

	for i := range s.Levels {
		if s.Levels[i].Nodes > 0 {
			s.Levels[i].AvgConnections = float64(s.Levels[i].Connections) / float64(s.Levels[i].Nodes)
		}
	}

	return s
}
