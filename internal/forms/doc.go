// ABOUTME: Package forms renders Form tabs and drives upload and submission
// ABOUTME: Identity fields are pre-filled and hidden for signed-in visitors

// Package forms implements the Form tab: a field list built from
// configuration, file uploads to pre-signed URLs, and a multipart
// submission replaced by a templated success message.
package forms
