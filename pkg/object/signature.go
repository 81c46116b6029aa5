package object

// CommitSigningPayload returns the canonical bytes a commit signature
// covers. The payload excludes the signature header itself, so signing
// and verification see the same bytes.
func CommitSigningPayload(c *CommitObj) []byte {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Signature = ""
	return MarshalCommit(&clone)
}
