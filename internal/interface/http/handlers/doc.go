// Package handlers contains HTTP health checks and reusable middleware.
//
// # Health Checks
//
// CompositeHealthChecker runs named checks in parallel. Required checks
// decide readiness; optional ones only mark the service degraded:
//
//	checker := handlers.NewCompositeHealthChecker("v0.1.0")
//	checker.AddCheck("store", handlers.NewPingCheck(store))
//	checker.AddOptionalCheck("redis", handlers.NewPingCheck(cache))
//
//	status := checker.Check(ctx)
//	if !status.Healthy {
//	    log.Printf("Health check failed: %s", status.Message)
//	}
//
// # Middleware
//
//	// Trusted identity from the upstream proxy
//	auth, err := handlers.NewProxyIdentity("X-User-Email", "X-Proxy-Token", hash)
//
//	// Per-IP token bucket
//	limiter := handlers.NewIPRateLimiter(20, 40)
//
//	handler := handlers.ChainHandler(
//	    mux,
//	    handlers.SecurityHeadersMiddleware,
//	    limiter.Middleware,
//	    auth.Middleware,
//	)
package handlers
