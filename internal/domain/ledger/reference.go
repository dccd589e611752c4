package ledger

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// referenceGroupNamespace scopes the deterministic IDs of reference groups
var referenceGroupNamespace = uuid.MustParse("6f1b7c52-3a0e-4f0a-9a51-2d2b8c9e4c11")

// ReferenceNumber builds the reference number of a leg: {documentRef}-{SUFFIX}
func ReferenceNumber(documentRef string, role Role) string {
	return documentRef + "-" + role.Suffix()
}

// ParseReferenceNumber splits a reference number into its document ref and role.
// It is an audit convenience; stored entries carry their role explicitly.
func ParseReferenceNumber(ref string) (string, Role, error) {
	idx := strings.LastIndex(ref, "-")
	if idx <= 0 || idx == len(ref)-1 {
		return "", "", fmt.Errorf("malformed reference number %q", ref)
	}
	role, ok := RoleFromSuffix(ref[idx+1:])
	if !ok {
		return "", "", fmt.Errorf("unknown role suffix in reference number %q", ref)
	}
	return ref[:idx], role, nil
}

// ReferenceGroupID is a stable identifier for one tenant's postings of documentRef.
// It is used as the aggregate ID of ledger events.
func ReferenceGroupID(tenantID uuid.UUID, documentRef string) uuid.UUID {
	return uuid.NewSHA1(referenceGroupNamespace, []byte(tenantID.String()+"|"+documentRef))
}
