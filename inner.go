package qrscan

import "github.com/Skryldev/qrscan/core"

// Inner exposes the underlying core.Processor for advanced use (e.g., direct
// registry access in tests).  Prefer the high-level API for normal usage.
func (s *Scanner) Inner() *core.Processor { return s.inner }

// Primitive returns the decode primitive shared by the cascade and capture.
func (s *Scanner) Primitive() core.Primitive { return s.prim }

// Validator returns the collaborator attached with WithValidator, or nil.
func (s *Scanner) Validator() core.Validator { return s.validator }
