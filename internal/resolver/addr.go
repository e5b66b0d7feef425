package resolver

import "net"

// resolveNetAddr turns a naming service's "host:port" string into a
// net.Addr the endpoint pool can dial, resolving any hostname once at
// poll time rather than on every connect.
func resolveNetAddr(hostport string) (net.Addr, error) {
	return net.ResolveTCPAddr("tcp", hostport)
}
