package api

func (s *Server) setupRoutes() {
	s.router.GET("/", s.healthHandler.WorkerInfo)
	s.router.GET("/health", s.healthHandler.HealthCheck)
	s.router.GET("/config/capabilities", s.healthHandler.Capabilities)

	s.router.POST("/detect/image", s.detectHandler.DetectImage)

	monitors := s.router.Group("/monitors")
	{
		monitors.GET("", s.monitorHandler.ListMonitors)
		monitors.POST("/video", s.monitorHandler.StartVideo)
		monitors.POST("/camera", s.monitorHandler.StartCamera)
		monitors.GET("/:id", s.monitorHandler.GetMonitor)
		monitors.POST("/:id/stop", s.monitorHandler.StopMonitor)
		monitors.GET("/:id/stream", s.monitorHandler.Stream)
		monitors.GET("/:id/frame", s.monitorHandler.Frame)
	}

	s.router.GET("/ws/monitors/:id", s.wsHandler.Serve)

	s.router.GET("/alerts", s.alertsHandler.RecentAlerts)

	system := s.router.Group("/system")
	{
		system.GET("/stats", s.systemHandler.GetStats)
	}
}
