// Package registry discovers Otii servers on a lab network.
//
// Measurement farms run several instrument servers; an agent next to each
// server registers it here with a TTL lease, and clients discover a target
// instead of hardcoding host:port. Discovery is optional; transport.Dial
// with a direct address never touches the registry.
package registry

// ServerInstance describes one running Otii server.
type ServerInstance struct {
	Addr     string // host:port of the TCP control socket
	Hostname string // machine the server runs on
	Version  string // server version string from its greeting
}

// Registry publishes and discovers instrument servers.
type Registry interface {
	// Register announces a server under the given farm name with a TTL in
	// seconds. The entry disappears automatically when the agent stops
	// renewing it.
	Register(farm string, instance ServerInstance, ttl int64) error
	// Deregister removes a server entry during graceful shutdown.
	Deregister(farm string, addr string) error
	// Discover lists the currently registered servers of a farm.
	Discover(farm string) ([]ServerInstance, error)
	// Watch emits the updated server list whenever the farm changes.
	Watch(farm string) <-chan []ServerInstance
}
