package std

import "errors"

var errNoProviderLookup = errors.New("no LLM provider configured")
var errNoObjectStore = errors.New("no object store configured")
var errNoHTTPClient = errors.New("no HTTP client configured")
