// Package dmart provides a session client for the Dmart API.
//
// A Client logs in to a single Dmart instance with a username and password,
// keeps the returned access token in memory, and attaches it to every
// authenticated request.
//
// # Usage
//
//	logger := zerolog.New(os.Stdout)
//	client := dmart.NewClient(dmart.Config{
//		URL:      "https://dmart.example.com",
//		Username: "alice",
//		Password: "secret",
//	}, logger, dmart.WithTimeout(10*time.Second))
//
//	if err := client.Connect(ctx); err != nil {
//		log.Fatal(err)
//	}
//	defer client.Disconnect(ctx)
//
//	profile, err := client.GetProfile(ctx)
//
// # Sessions
//
// Authenticated calls made before Connect fail with ErrNotConnected, unless
// the client was created with WithAutoConnect(true). When the server rejects
// the token with 401, or the token's JWT expiry has passed, the client logs in
// again once and retries the call once. Concurrent callers that see the same
// rejected token share one login.
//
// Login and logout requests are never retried by the transport. GET requests
// are retried on 429, 5xx and transient connection errors.
//
// # Error Handling
//
// Every error matches exactly one of these with errors.Is:
//
//   - ErrConfiguration: missing or malformed Config, detected before any request
//   - ErrNetwork: connection refused, reset, DNS or TLS failure, or cancellation
//   - ErrTimeout: no response within the configured timeout or context deadline
//   - ErrProtocol: the server did not speak HTTP
//   - ErrAuthentication: the credentials or token were rejected
//   - ErrService: unexpected status or payload from the service
//   - ErrNotConnected: no session and auto-connect disabled
//
// Details are available through errors.As with *ConfigError, *RequestError
// and *APIError:
//
//	var apiErr *dmart.APIError
//	if errors.As(err, &apiErr) && apiErr.Detail != nil {
//		fmt.Println(apiErr.Detail.Type, apiErr.Detail.Code)
//	}
package dmart
