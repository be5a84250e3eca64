// Package logx configures airsync's structured logging.
//
// A small wrapper (logx.Logger) on top of zerolog keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Runtime level and sink swaps through Service.Apply
package logx
