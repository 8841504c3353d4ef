// Package services holds the shared error taxonomy and context plumbing used
// by the pipeline components and the external service clients beneath it.
package services
