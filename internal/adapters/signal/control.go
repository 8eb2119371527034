package signal

func (s *Server) handlePing() (any, error) {
	return pongResponse{Pong: true}, nil
}

// CloseAll drops every connection. Used on shutdown.
func (s *Server) CloseAll() {
	s.mu.RLock()
	conns := make([]*WsSignalConn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.RUnlock()
	for _, c := range conns {
		c.Close()
	}
}
