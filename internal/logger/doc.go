// Package logger wraps zap for the provisioning pipeline:
//   - a global sugared logger writing to stderr, so stdout stays free for
//     build-system directives,
//   - context helpers (ToContext/FromContext/WithName/WithKV),
//   - level parsing and adjustment,
//   - convenience functions (Infof, ErrorKV, etc.).
//
// Every stage receives a context and logs through it, so messages carry the
// stage name they were emitted from.
package logger
