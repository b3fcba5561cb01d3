package std

import "github.com/worldline-go/klient"

// NewOutboundClient builds the klient-backed HTTP client shared by every
// outbound call this engine makes (http.request, tool.http_request,
// web.get), exported so cmd/engine/main.go can build the single client,
// shared by every run, that the engine injects into Input.Caps.HTTP, grounded on the original's
// http-request.go buildClient: base-URL/env-value checks disabled since
// these blocks always carry a full URL from settings.
func NewOutboundClient(retry bool) (*klient.Client, error) {
	opts := []klient.OptionClientFn{
		klient.WithDisableBaseURLCheck(true),
		klient.WithDisableEnvValues(true),
		klient.WithDisableRetry(!retry),
	}
	return klient.New(opts...)
}
