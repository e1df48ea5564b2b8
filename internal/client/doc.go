// Package client talks to the DevPayr API.
//
// HTTPClient owns the wire rules shared by every call: JSON accept and
// content headers, license and API-key authentication headers, the
// X-Devpayr-Domain identity header, and the merge of the configured global
// query with per-call parameters. Responses must be JSON objects; anything
// else, and any 4xx/5xx status, surfaces as *errors.APIError. Network
// failures and timeouts surface as *errors.TransportError.
//
// The resource services (projects, licenses, domains, injectables and
// payments) are thin path builders over HTTPClient.
package client
