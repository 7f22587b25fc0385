package deployment

import "fmt"

// ContractVersion identifies a T-REX release family. It is resolved once
// when a deployment is opened; call sites consult the Capabilities instead
// of calling optional methods to see whether they exist.
type ContractVersion int

const (
	// V1 suites predate the version() getter (T-REX 3.x).
	V1 ContractVersion = iota + 1
	// V2 suites report a 4.x version through Token.version().
	V2
)

func (v ContractVersion) String() string {
	switch v {
	case V1:
		return "v1"
	case V2:
		return "v2"
	}
	return fmt.Sprintf("ContractVersion(%d)", int(v))
}

// Capabilities is the method set the tooling relies on for a version.
type Capabilities struct {
	Version ContractVersion
	// Label is the version string reported by the token, if any.
	Label string
	// StoredIdentity: IdentityRegistryStorage.storedIdentity is read
	// directly. Without it the registry's identity() stands in.
	StoredIdentity bool
}

var knownCapabilities = map[ContractVersion]Capabilities{
	V1: {Version: V1, StoredIdentity: false},
	V2: {Version: V2, StoredIdentity: true},
}

// CapabilitiesFor returns the descriptor of v with the reported label.
func CapabilitiesFor(v ContractVersion, label string) (Capabilities, error) {
	c, ok := knownCapabilities[v]
	if !ok {
		return Capabilities{}, fmt.Errorf("unsupported contract version %s", v)
	}
	c.Label = label
	return c, nil
}
