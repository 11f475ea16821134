// Package logx configures classalarm's structured logging.
//
// A small wrapper (logx.Logger) on top of zerolog keeps console output
// readable (short timestamp + short caller) and file output JSON-structured.
// Loggers derived from a Service follow runtime level changes made by
// config hot reload.
package logx
