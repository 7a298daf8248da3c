// Package tcp runs the framed socket transport of package base over TCP.
//
// The package only contributes the dialing and listening side: a dialer that
// connects with a 5s timeout and a listener that binds the configured address.
// Both apply the socket and TCP options of their config to every connection
// (buffer sizes, TCP_NODELAY, keepalive, linger).
//
// Server connections read into 512 KB buffers by default, which holds a
// typical result page without growing.
package tcp
