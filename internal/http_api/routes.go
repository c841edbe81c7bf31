package http_api

// routes sets up the routes for the HTTP server. The webhook endpoint stays
// outside the auth group: the provider authenticates with a signature, not a
// bearer token.
func (s *HTTPServer) routes() {
	s.router.GET("/api/v1/health", s.health)
	s.router.POST("/api/v1/webhook", s.webhook)

	authed := s.router.Group("/api/v1", s.authRequired())
	{
		authed.GET("/payment-methods", s.listPaymentMethods)
		authed.POST("/payment-methods/setup-intent", s.beginSetup)
		authed.POST("/payment-methods", s.commitPaymentMethod)
		authed.POST("/payment-methods/wallet", s.addWallet)
		authed.PUT("/payment-methods/:id/default", s.setDefaultPaymentMethod)
		authed.DELETE("/payment-methods/:id", s.removePaymentMethod)

		authed.POST("/payment-intent", s.createIntent)
		authed.POST("/confirm-payment", s.confirmPayment)
		authed.POST("/wallet-simulation", s.walletSimulation)
		authed.GET("/donations", s.listDonations)

		authed.POST("/recurring", s.createRecurring)
		authed.GET("/recurring", s.listRecurring)
		authed.DELETE("/recurring/:id", s.cancelRecurring)
	}
}
