// Package aprs encodes station samples into APRS-IS text frames:
// position report, telemetry sample (T#), and telemetry metadata messages
// UNIT, PARM, EQNS addressed to the station itself.
//
// Frame of a self originated sample (source node equals destination node):
//   N0CALL-1>APFD01:<body>\r
// Frame of a sample relayed by another node over RF:
//   N0CALL-2>APFD01,qAR,N0CALL-1:<body>\r
//
// Encoding is pure, except Sequence which advances once per telemetry frame.
// References: APRS Protocol Reference 1.0, chapters 8 and 13.
package aprs
