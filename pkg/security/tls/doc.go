// Package tls builds the server-side TLS configuration of the API server.
//
// Certificates are served through a Reloader, which polls the certificate
// and key files and swaps in a rotated pair without a restart. A pair that
// fails to parse, or whose leaf is expired or not yet valid, is rejected and
// the previous certificate stays in use.
//
// When a client CA bundle is configured the server verifies client
// certificates (mTLS) in addition to any bearer token checks.
//
//	tlsCfg, reloader, err := tls.ServerConfig(cfg.Server.TLS)
//	if err != nil {
//		return err
//	}
//	go reloader.Run(ctx)
//	httpServer.TLSConfig = tlsCfg
package tls
