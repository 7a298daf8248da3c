// Package unix runs the framed socket transport of package base over Unix
// domain sockets, for clients on the same host as the server.
//
// Endpoints are file system paths. On Listen a stale socket file from an
// earlier run is removed; a regular file at the path is never touched.
// Server connections read into 64 KB buffers by default.
package unix
