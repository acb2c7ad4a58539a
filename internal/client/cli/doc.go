// Package cli is the interactive course-alerts client.
//
// App wires configuration, the local credential store, the backend client
// and the services behind a small line-oriented REPL: browse a term's
// courses, select sections, then run "alert" to sign in by email code and
// subscribe to seat alerts.
package cli
