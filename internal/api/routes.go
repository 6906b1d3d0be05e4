package api

// setupRoutes mounts the consumer surface. The signal, analysis and
// quote paths are contractual; the UI consumes those shapes unchanged.
func (s *Server) setupRoutes() {
	signals := s.router.Group("/signals")
	{
		signals.GET("/tfqe", s.handleTFQESignal)
	}

	analysis := s.router.Group("/analysis")
	{
		analysis.POST("/multi-timeframe", s.handleMultiTimeframe)
	}

	mkt := s.router.Group("/market")
	{
		mkt.GET("/latest", s.handleLatestQuotes)
		mkt.GET("/status", s.handleMarketStatus)
	}

	s.router.GET("/pairs", s.handlePairs)
	s.router.GET("/positions/summary", s.handlePositionSummary)

	s.router.GET("/health", s.handleHealth)

	// Root endpoint
	s.router.GET("/", s.handleRoot)
}
