package agent

import "errors"

var errNoProviderLookup = errors.New("no LLM provider configured")
