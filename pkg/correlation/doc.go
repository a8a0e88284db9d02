// Package correlation matches responses to the outbound requests that caused
// them, by request id or by the 8-byte token transports carry out of band.
package correlation
