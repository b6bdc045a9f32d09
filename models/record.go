package models

// Record is one resolved module as handed over by the resolver stage: a
// dotted module name plus its compiled payload.
type Record struct {
	Name    string
	Payload []byte // nil when the resolver carried no payload
	Package bool
	Forbid  bool
}

// Stored reports whether the record contributes payload bytes to the blob.
// Forbidden records and records without a payload both encode as an empty
// row, so the loader cannot tell them apart and neither do we.
func (r *Record) Stored() bool {
	return !r.Forbid && len(r.Payload) > 0
}

// Kind names the record for listings.
func (r *Record) Kind() string {
	switch {
	case r.Forbid || len(r.Payload) == 0:
		return "forbidden"
	case r.Package:
		return "package"
	}
	return "module"
}
