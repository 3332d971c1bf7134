// Package history records the operations a benchmark run performed and checks
// that they form a linearizable history of a single read/write register.
//
// Operations can be recorded directly through a Recorder or recovered from
// the run's operation log with ParseLog.
package history
