// Package loop provides a single-threaded task loop.
//
// Every component of the widget runtime mutates its DOM nodes and state only
// from tasks running on the Loop. Network goroutines never touch that state
// directly; they Post their results back onto the loop, the same way a
// browser delivers fetch callbacks on its main thread.
//
// Timers created with AfterFunc and Every also fire as loop tasks, so a
// debounced render and the delta it follows are always ordered.
package loop
