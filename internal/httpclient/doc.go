// Package httpclient builds and sends the HTTP requests issued by the HTTP and
// object-store adapters.
//
// # Request Building
//
// Use [NewRequestBuilder] with a [Spec] describing the method, URL, headers
// and body:
//
//	body, err := httpclient.NewBodySource(cfg.Body, cfg.BodyFile)
//	builder, err := httpclient.NewRequestBuilder(httpclient.Spec{
//		Method: "POST",
//		URL:    "https://api.example.com/items",
//		Body:   body,
//	})
//	req, err := builder.Build(ctx)
//
// For requests requiring authentication, use [NewRequestBuilderWithAuth] with
// a provider from [github.com/torosent/perfgauge/internal/auth].
//
// # HTTP Client
//
// [NewClient] returns a client tuned for many concurrent keep-alive
// connections. [Drain] consumes a response body and reports its size so
// adapters can account transferred bytes.
package httpclient
