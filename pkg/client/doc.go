// Package client is the Go SDK for the archivebroni account API.
//
// It wraps registration, sign-in and every profile operation in typed
// calls. Every server response carries {success, error, warning}; failures
// come back as *APIError with the failure kind, so callers branch on Kind
// rather than on HTTP status.
//
// # Signing in
//
//	c, err := client.New("http://localhost:8080")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	sess, err := c.Login(ctx, "u1@x.com", "secret12")
//
// Login stores the session token on the client; later calls send it as a
// Bearer token. To reuse a session across processes, persist it:
//
//	client.SaveSession(path, sess)
//	...
//	c, err := client.New(base, client.WithSessionFile(path))
//
// # Partial success
//
// Register may succeed without a profile (ProfileCreated=false). The
// warning explains why; the profile is created on the next sign-in.
//
// # Public profiles
//
// WithCacheTTL caches PublicProfile lookups in memory:
//
//	c, _ := client.New(base, client.WithCacheTTL(30*time.Second))
//	p, err := c.PublicProfile(ctx, "u1")
package client
