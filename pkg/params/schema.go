package params

// Schema identifies the data model family of a device.
type Schema uint8

const (
	// SchemaTR181 is the "Device." data model.
	SchemaTR181 Schema = iota

	// SchemaTR098 is the "InternetGatewayDevice." data model.
	SchemaTR098
)

// Root object paths of each schema.
const (
	RootTR181 = "Device."
	RootTR098 = "InternetGatewayDevice."
)

// String returns the schema name.
func (s Schema) String() string {
	switch s {
	case SchemaTR181:
		return "tr181"
	case SchemaTR098:
		return "tr098"
	default:
		return "unknown"
	}
}

// Root returns the root object path of the schema.
func (s Schema) Root() string {
	if s == SchemaTR098 {
		return RootTR098
	}
	return RootTR181
}

// DetectSchema returns SchemaTR098 when the store holds an
// InternetGatewayDevice tree, SchemaTR181 otherwise.
func DetectSchema(s Store) Schema {
	if s.Has(RootTR098) {
		return SchemaTR098
	}
	return SchemaTR181
}

// Pick returns the path matching the store's schema.
func (s Schema) Pick(tr098, tr181 string) string {
	if s == SchemaTR098 {
		return tr098
	}
	return tr181
}
