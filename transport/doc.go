// Package transport opens live sessions to resolved target addresses.
//
// A Dialer turns a "host:port" address and optional credentials into a
// Session. TCPDialer dials directly; SSHDialer tunnels through an SSH gateway
// and authenticates with the target credentials.
//
// A Session serializes I/O through Do and notices when the remote end goes
// away. Listeners registered with OnClose fire once on remote closure and
// never on a local Close, which lets a cache evict a connection the moment
// its transport breaks.
package transport
