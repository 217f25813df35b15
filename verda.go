// Package verda provides a Go SDK for the Verda cloud API (formerly
// DataCrunch).
//
// The SDK covers the authenticated resource API (instances, volumes, SSH
// keys, container deployments, ...) and the inference endpoints of
// serverless container deployments.
//
// # Installation
//
//	go get github.com/verda-cloud/verda-go
//
// # Quick Start
//
//	client, err := verda.NewClient(ctx, clientID, clientSecret)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	balance, err := client.Balance.Get(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("%.2f %s\n", balance.Amount, balance.Currency)
//
// # Authentication
//
// [NewClient] authenticates with the OAuth2 client credentials grant. Before
// each API call the token is checked: an expired token is refreshed, and if
// the refresh fails the client authenticates once more with its
// credentials. Requests are not retried.
//
// # Inference
//
// Deployments with an endpoint can be called directly when the client has an
// inference key, or through a standalone [InferenceClient]:
//
//	ic, err := verda.NewInferenceClient(inferenceKey, endpointURL)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Synchronous
//	resp, err := ic.RunSync(ctx, &verda.InferenceRequest{Data: payload})
//
//	// Asynchronous
//	exec, err := ic.Run(ctx, &verda.InferenceRequest{Data: payload})
//	if err := exec.Wait(ctx, 2*time.Second); err != nil {
//	    log.Fatal(err)
//	}
//	result, err := exec.Result(ctx)
//
// # Client Configuration
//
// The client is configured with functional options, or from the
// environment or a YAML file with [Config]:
//
//	client, err := verda.NewClientFromConfig(ctx, verda.ConfigFromEnv(),
//	    verda.WithTimeout(time.Minute),
//	)
//
// # Error Handling
//
// Failed API calls return an [*APIError] carrying the code and message sent
// by the server. Inference calls return an [*InferenceError] that wraps the
// underlying cause:
//
//	_, err := client.Instances.Get(ctx, id)
//	var apiErr *verda.APIError
//	if errors.As(err, &apiErr) && apiErr.Code == verda.ErrorCodeNotFound {
//	    // Handle not found
//	}
//
// # Thread Safety
//
// A [Client] owns a mutable token and an [InferenceClient] owns mutable
// global headers. Neither is safe for concurrent use without external
// synchronization. Use one client per goroutine or guard calls with a mutex.
package verda
