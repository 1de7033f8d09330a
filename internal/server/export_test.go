package server

import "github.com/nupi-ai/plugin-stt-local-pocketsphinx/internal/session"

// SetEngineFactory replaces backend construction for new streams.
func (s *Server) SetEngineFactory(f session.EngineFactory) { s.newEngine = f }
