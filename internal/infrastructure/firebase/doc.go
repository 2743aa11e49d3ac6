// Package firebase is a minimal Firebase Realtime Database REST client.
//
// It authenticates with a Google service account through golang.org/x/oauth2
// and exposes the path-level operations the state store needs:
//
//	GET    {url}/{path}.json           read, null when absent
//	PUT    {url}/{path}.json           replace
//	DELETE {url}/{path}.json           remove
//	PATCH  {url}/.json                 atomic multi-path update
//	GET    {url}/.json?shallow=true    health check
//
// Client satisfies state.Tree, state.MultiPathWriter and state.HealthChecker.
package firebase
