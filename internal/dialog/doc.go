// Package dialog is the form adapter and submission pipeline behind the grid's
// create, edit, view, and delete dialogs.
//
// A dialog holds an opaque FormHandle.  Resolve probes it for capabilities and
// extracts a payload, Normalize turns whatever error a validation library
// produced into Errors, and Machine drives the submission through the caller's
// hooks and handlers.  Registry and Container let an owner submit a mounted
// form without holding a reference to it.
package dialog
