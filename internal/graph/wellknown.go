package graph

// Well-known nodes of the base namespace. They are defined by the base
// nodeset imported at bootstrap; the identifiers are fixed by the protocol.
var (
	BooleanID       = NewNumericNodeId(0, 1)
	SByteID         = NewNumericNodeId(0, 2)
	ByteID          = NewNumericNodeId(0, 3)
	Int16ID         = NewNumericNodeId(0, 4)
	UInt16ID        = NewNumericNodeId(0, 5)
	Int32ID         = NewNumericNodeId(0, 6)
	UInt32ID        = NewNumericNodeId(0, 7)
	Int64ID         = NewNumericNodeId(0, 8)
	UInt64ID        = NewNumericNodeId(0, 9)
	FloatID         = NewNumericNodeId(0, 10)
	DoubleID        = NewNumericNodeId(0, 11)
	StringID        = NewNumericNodeId(0, 12)
	DateTimeID      = NewNumericNodeId(0, 13)
	NodeIdTypeID    = NewNumericNodeId(0, 17)
	QualifiedNameID = NewNumericNodeId(0, 20)
	LocalizedTextID = NewNumericNodeId(0, 21)
	StructureID     = NewNumericNodeId(0, 22)
	BaseDataTypeID  = NewNumericNodeId(0, 24)
	NumberID        = NewNumericNodeId(0, 26)
	IntegerID       = NewNumericNodeId(0, 27)
	UIntegerID      = NewNumericNodeId(0, 28)
	EnumerationID   = NewNumericNodeId(0, 29)

	ReferencesID             = NewNumericNodeId(0, 31)
	NonHierarchicalRefsID    = NewNumericNodeId(0, 32)
	HierarchicalReferencesID = NewNumericNodeId(0, 33)
	HasChildID               = NewNumericNodeId(0, 34)
	OrganizesID              = NewNumericNodeId(0, 35)
	HasModellingRuleID       = NewNumericNodeId(0, 37)
	HasTypeDefinitionID      = NewNumericNodeId(0, 40)
	AggregatesID             = NewNumericNodeId(0, 44)
	HasSubtypeID             = NewNumericNodeId(0, 45)
	HasPropertyID            = NewNumericNodeId(0, 46)
	HasComponentID           = NewNumericNodeId(0, 47)

	BaseObjectTypeID       = NewNumericNodeId(0, 58)
	FolderTypeID           = NewNumericNodeId(0, 61)
	BaseVariableTypeID     = NewNumericNodeId(0, 62)
	BaseDataVariableTypeID = NewNumericNodeId(0, 63)
	PropertyTypeID         = NewNumericNodeId(0, 68)
	ModellingRuleMandatory = NewNumericNodeId(0, 78)

	RootFolderID    = NewNumericNodeId(0, 84)
	ObjectsFolderID = NewNumericNodeId(0, 85)
	TypesFolderID   = NewNumericNodeId(0, 86)
)
