// Package aprsis is APRS-IS client, transmit only.
//
// Session keeps one authenticated TCP connection to APRS-IS server.
// Server lines are read only to detect connection loss and log login response.
// Connection is restored on next Send with fixed retry delay, forever
// until success, context cancel or Close.
package aprsis
