// ABOUTME: Package authgate gates premium tabs behind one-time code or provider sign-in
// ABOUTME: The gate is the only writer of the workspace session token

// Package authgate renders the sign-in flow for premium tabs and verifies
// stored session tokens.
//
// A Gate moves from StateDefault to StateMagicLogin or StateMagicCreate
// depending on whether the backend already knows the email. Resending a
// code keeps the current step. Provider sign-in opens a popup and waits for
// a postMessage carrying the token. On success the token is stored under
// storage.TokenKey and the gate removes itself.
package authgate
