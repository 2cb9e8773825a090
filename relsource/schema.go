package relsource

// PKType declares the native Go type a relational entity's primary key
// coerces to. The relational source never silently accepts a mismatched
// type; it coerces caller-supplied strings using this declaration or
// fails the item with *BadIDError.
type PKType int

const (
	// PKInt coerces to int64.
	PKInt PKType = iota
	// PKUUID coerces to github.com/google/uuid.UUID.
	PKUUID
	// PKBinary coerces to a sortable binary id (github.com/oklog/ulid/v2.ULID).
	PKBinary
)

func (t PKType) String() string {
	switch t {
	case PKInt:
		return "int"
	case PKUUID:
		return "uuid"
	case PKBinary:
		return "binary"
	default:
		return "unknown"
	}
}

// AssocKind is the association shape supported by association loads.
type AssocKind int

const (
	// BelongsTo is a single-valued association owned by a foreign key on
	// the child (this entity) pointing at the parent.
	BelongsTo AssocKind = iota
	// HasOne is a single-valued association owned by a foreign key on the
	// target entity pointing back at this one; overflow is *MultipleResultsError.
	HasOne
	// HasMany is a multi-valued association owned by a foreign key on the
	// target entity pointing back at this one.
	HasMany
	// ManyToMany is a multi-valued association bridged through a join
	// entity.
	ManyToMany
)

// Association describes one named relationship on an entity, resolved when
// loading by association_name.
type Association struct {
	Name   string
	Kind   AssocKind
	Target string // target entity name

	// ForeignKey is the column carrying the relationship: on this entity
	// for BelongsTo, on the target entity for HasOne/HasMany, or on
	// JoinEntity for ManyToMany.
	ForeignKey string

	// JoinEntity names the bridging entity for ManyToMany associations.
	JoinEntity string
	// JoinParentKey is the join entity's column referencing the parent.
	JoinParentKey string
	// JoinTargetKey is the join entity's column referencing the target.
	JoinTargetKey string
}

// Multivalued reports whether this association kind yields a sequence
// rather than a single record.
func (a Association) Multivalued() bool {
	return a.Kind == HasMany || a.Kind == ManyToMany
}

// Schema describes one relational entity: its declared primary-key type and
// its named associations.
type Schema struct {
	Name         string
	PrimaryKey   PKType
	Associations map[string]Association
}

// Registry maps entity name to Schema, giving dispatch the minimal lookup
// it needs to resolve a parent entity's primary-key type or association
// definition.
type Registry map[string]Schema

// Association looks up a named association on an entity.
func (r Registry) Association(entity, name string) (Association, bool) {
	schema, ok := r[entity]
	if !ok {
		return Association{}, false
	}
	assoc, ok := schema.Associations[name]
	return assoc, ok
}

// PrimaryKeyType returns the declared primary-key type for entity, defaulting
// to PKInt if the entity is not registered.
func (r Registry) PrimaryKeyType(entity string) PKType {
	if schema, ok := r[entity]; ok {
		return schema.PrimaryKey
	}
	return PKInt
}
